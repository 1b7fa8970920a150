// Package analytics derives board-level workflow metrics from enriched cards.
package analytics

import (
	"sort"
	"strings"
	"time"

	"github.com/felixgeelhaar/farol/pkg/domain/stage"
)

// Defaults applied when Options leave a field unset.
const (
	DefaultAgingThresholdDays = 7
	DefaultTopAged            = 10
	DefaultTopAssignees       = 8
)

// Health score constants. Changing any of them changes the score contract.
const (
	maxAgedPenalty  = 70
	bypassPenaltyK  = 0.5
	maxLeadPenalty  = 30
	leadPenaltyDiv  = 2
	maxHealthScore  = 100
	percentageScale = 100
)

// Options tunes the aggregator.
type Options struct {
	AgingThresholdDays int
	TopAged            int
	TopAssignees       int
}

func (o Options) withDefaults() Options {
	if o.AgingThresholdDays <= 0 {
		o.AgingThresholdDays = DefaultAgingThresholdDays
	}
	if o.TopAged <= 0 {
		o.TopAged = DefaultTopAged
	}
	if o.TopAssignees <= 0 {
		o.TopAssignees = DefaultTopAssignees
	}
	return o
}

// ItemRef identifies a card in a metric list.
type ItemRef struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Stage     string `json:"stage"`
	AgingDays int    `json:"aging_days"`
}

// AssigneeLead is the mean lead time of the finished cards an assignee was on.
type AssigneeLead struct {
	Name         string `json:"name"`
	MeanLeadDays int    `json:"mean_lead_days"`
	Items        int    `json:"items"`
}

// DashboardMetrics is the full aggregate for one render cycle.
type DashboardMetrics struct {
	GeneratedAt        time.Time              `json:"generated_at"`
	AgingThresholdDays int                    `json:"aging_threshold_days"`
	Week               Week                   `json:"week"`
	TotalItems         int                    `json:"total_items"`
	StageCounts        map[stage.Category]int `json:"stage_counts"`
	Unmapped           int                    `json:"unmapped"`
	DoneToday          []ItemRef              `json:"done_today"`
	DoneThisWeek       []ItemRef              `json:"done_this_week"`
	DoingNow           []ItemRef              `json:"doing_now"`
	WaitingNow         []ItemRef              `json:"waiting_now"`
	AgedNow            []ItemRef              `json:"aged_now"`
	// DailyDone counts this week's completions per weekday, Monday first.
	DailyDone      [7]int         `json:"daily_done"`
	Finished       int            `json:"finished"`
	BypassRate     int            `json:"bypass_rate"`
	LeadAverage    *int           `json:"lead_average,omitempty"`
	HealthScore    int            `json:"health_score"`
	LeadByAssignee []AssigneeLead `json:"lead_by_assignee"`
	TopAged        []ItemRef      `json:"top_aged"`
}

// Aggregator computes DashboardMetrics under a fixed classification.
type Aggregator struct {
	cls  stage.Classification
	opts Options
}

// NewAggregator creates an aggregator. Zero option fields take defaults.
func NewAggregator(cls stage.Classification, opts Options) *Aggregator {
	return &Aggregator{cls: cls, opts: opts.withDefaults()}
}

// Options returns the effective options.
func (a *Aggregator) Options() Options {
	return a.opts
}

// Classification returns the classification the aggregator was built with.
func (a *Aggregator) Classification() stage.Classification {
	return a.cls
}

// Aggregate derives dashboard metrics from items as of now. A threshold of
// zero or less falls back to the configured default. Aging is recomputed
// against now; the items' own AgingDays fields are not consulted.
func (a *Aggregator) Aggregate(items []WorkItem, now time.Time, threshold int, week Week) DashboardMetrics {
	if threshold <= 0 {
		threshold = a.opts.AgingThresholdDays
	}

	m := DashboardMetrics{
		GeneratedAt:        now,
		AgingThresholdDays: threshold,
		Week:               week,
		TotalItems:         len(items),
		StageCounts:        make(map[stage.Category]int, 4),
		DoneToday:          []ItemRef{},
		DoneThisWeek:       []ItemRef{},
		DoingNow:           []ItemRef{},
		WaitingNow:         []ItemRef{},
		AgedNow:            []ItemRef{},
	}
	for _, c := range stage.Categories() {
		m.StageCounts[c] = 0
	}

	today := startOfDay(now)
	tomorrow := today.AddDate(0, 0, 1)

	var bypassed, leadSum, leadCount int
	aging := make([]int, len(items))

	for i, item := range items {
		aging[i] = item.AgingAt(now)
		ref := ItemRef{ID: item.ID, Name: item.Name, Stage: item.Stage, AgingDays: aging[i]}

		switch cat := a.cls.Classify(item.Stage); cat {
		case stage.None:
			m.Unmapped++
		default:
			m.StageCounts[cat]++
			if cat == stage.Doing {
				m.DoingNow = append(m.DoingNow, ref)
			}
			if cat == stage.Waiting {
				m.WaitingNow = append(m.WaitingNow, ref)
			}
		}

		if done := item.Movement.FirstEnteredDone; done != nil {
			m.Finished++
			if item.Movement.Bypass {
				bypassed++
			}
			if !done.Before(today) && done.Before(tomorrow) {
				m.DoneToday = append(m.DoneToday, ref)
			}
			if week.Contains(*done) {
				m.DoneThisWeek = append(m.DoneThisWeek, ref)
				m.DailyDone[WeekdayIndex(done.In(now.Location()))]++
			}
		}

		if item.LeadDays != nil {
			leadSum += *item.LeadDays
			leadCount++
		}

		if aging[i] >= threshold {
			m.AgedNow = append(m.AgedNow, ref)
		}
	}

	if m.Finished > 0 {
		m.BypassRate = roundHalfUp(float64(percentageScale*bypassed) / float64(m.Finished))
	}
	if leadCount > 0 {
		avg := roundHalfUp(float64(leadSum) / float64(leadCount))
		m.LeadAverage = &avg
	}
	m.HealthScore = HealthScore(len(m.AgedNow), m.BypassRate, m.LeadAverage)
	m.LeadByAssignee = leadByAssignee(items, a.opts.TopAssignees)
	m.TopAged = topAged(items, aging, a.opts.TopAged)

	return m
}

// HealthScore is a heuristic 0-100 composite, not a validated statistic:
// 100 minus penalties for aged cards (capped at 70), half the bypass rate,
// and half the average lead time (capped at 30).
func HealthScore(aged, bypassRate int, leadAverage *int) int {
	agedPenalty := min(maxAgedPenalty, aged)
	bypassPenalty := roundHalfUp(float64(bypassRate) * bypassPenaltyK)
	leadPenalty := 0
	if leadAverage != nil {
		leadPenalty = min(maxLeadPenalty, roundHalfUp(float64(*leadAverage)/leadPenaltyDiv))
	}
	return max(0, maxHealthScore-(agedPenalty+bypassPenalty+leadPenalty))
}

type leadAccumulator struct {
	name  string
	sum   int
	count int
}

func leadByAssignee(items []WorkItem, top int) []AssigneeLead {
	var order []*leadAccumulator
	byName := make(map[string]*leadAccumulator)

	for _, item := range items {
		if item.LeadDays == nil {
			continue
		}
		for _, raw := range item.Assignees {
			name := strings.TrimSpace(raw)
			if name == "" {
				continue
			}
			acc, ok := byName[name]
			if !ok {
				acc = &leadAccumulator{name: name}
				byName[name] = acc
				order = append(order, acc)
			}
			acc.sum += *item.LeadDays
			acc.count++
		}
	}

	out := make([]AssigneeLead, 0, len(order))
	for _, acc := range order {
		out = append(out, AssigneeLead{
			Name:         acc.name,
			MeanLeadDays: roundHalfUp(float64(acc.sum) / float64(acc.count)),
			Items:        acc.count,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].MeanLeadDays > out[j].MeanLeadDays
	})
	if len(out) > top {
		out = out[:top]
	}
	return out
}

func topAged(items []WorkItem, aging []int, top int) []ItemRef {
	refs := make([]ItemRef, len(items))
	for i, item := range items {
		refs[i] = ItemRef{ID: item.ID, Name: item.Name, Stage: item.Stage, AgingDays: aging[i]}
	}
	sort.SliceStable(refs, func(i, j int) bool {
		return refs[i].AgingDays > refs[j].AgingDays
	})
	if len(refs) > top {
		refs = refs[:top]
	}
	return refs
}
