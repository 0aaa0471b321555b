// Package normalize turns the heterogeneous JSON payloads the vendor API has
// shipped over time into one canonical usage record. Matching is an ordered
// cascade: the first rule whose required fields are present wins, so a payload
// matching several shapes always resolves the same way.
package normalize

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/janekbaraniewski/usagewatch/internal/core"
)

// DefaultUnitLimit is used when the fallback rule finds consumption but no
// derivable limit. It is a deliberate "some data beats no data" compromise,
// not a real quota; callers still see plan limits once a richer payload
// arrives.
const DefaultUnitLimit = 1000

// unitsPlanLabel tags records resolved from the usage-units payload shape,
// which carries no plan name of its own.
const unitsPlanLabel = "usage-units"

type rule struct {
	name  string
	match func(data json.RawMessage, now time.Time) *core.UsageRecord
}

// Evaluation order is load-bearing; see the package comment.
var rules = []rule{
	{"units", matchUnits},
	{"flat-credits", matchFlatCredits},
	{"nested-credits-included", matchNestedCreditsIncluded},
	{"nested-credits-used", matchNestedCreditsUsed},
	{"nested-usage", matchNestedUsage},
	{"root-aliases", matchRootAliases},
}

// Record normalizes an envelope payload into the canonical usage record.
// It returns nil when success is false, the payload is absent, or no rule
// matches; malformed payloads degrade to nil rather than an error because
// usage metering is advisory.
func Record(success bool, data json.RawMessage) *core.UsageRecord {
	return recordAt(success, data, time.Now())
}

func recordAt(success bool, data json.RawMessage, now time.Time) *core.UsageRecord {
	if !success || len(data) == 0 {
		return nil
	}
	for _, r := range rules {
		if rec := r.match(data, now); rec != nil {
			if rec.ConsumedUnits < 0 {
				rec.ConsumedUnits = 0
			}
			attachSiblings(data, rec)
			return rec
		}
	}
	return nil
}

// siblings are plan/renewal fields that may ride along with any shape.
type siblings struct {
	Plan             string `json:"plan"`
	PlanName         string `json:"planName"`
	Tier             string `json:"tier"`
	SubscriptionType string `json:"subscriptionType"`
	RenewalDate      string `json:"renewalDate"`
	NextBilling      string `json:"nextBilling"`
}

func attachSiblings(data json.RawMessage, rec *core.UsageRecord) {
	var s siblings
	if err := json.Unmarshal(data, &s); err != nil {
		return
	}
	if rec.PlanName == "" || rec.PlanName == unitsPlanLabel {
		for _, candidate := range []string{s.PlanName, s.Plan, s.Tier, s.SubscriptionType} {
			if candidate != "" {
				rec.PlanName = candidate
				break
			}
		}
	}
	if rec.RenewalDate == "" {
		if s.RenewalDate != "" {
			rec.RenewalDate = s.RenewalDate
		} else if s.NextBilling != "" {
			rec.RenewalDate = s.NextBilling
		}
	}
}

func matchUnits(data json.RawMessage, now time.Time) *core.UsageRecord {
	var v struct {
		Used      *float64 `json:"usageUnitsUsedThisBillingCycle"`
		Available *float64 `json:"usageUnitsAvailable"`
	}
	if err := json.Unmarshal(data, &v); err != nil || v.Used == nil {
		return nil
	}
	available := 0.0
	if v.Available != nil {
		available = *v.Available
	}
	return &core.UsageRecord{
		ConsumedUnits: *v.Used,
		UnitLimit:     available + *v.Used,
		LastUpdate:    now,
		PlanName:      unitsPlanLabel,
	}
}

func matchFlatCredits(data json.RawMessage, now time.Time) *core.UsageRecord {
	var v struct {
		Renewing *float64 `json:"creditsRenewingEachBillingCycle"`
		Included *float64 `json:"creditsIncludedThisBillingCycle"`
	}
	if err := json.Unmarshal(data, &v); err != nil || v.Renewing == nil || v.Included == nil {
		return nil
	}
	return &core.UsageRecord{
		ConsumedUnits: *v.Included - *v.Renewing,
		UnitLimit:     *v.Included,
		LastUpdate:    now,
	}
}

func matchNestedCreditsIncluded(data json.RawMessage, now time.Time) *core.UsageRecord {
	var v struct {
		Credits *struct {
			Included *float64 `json:"includedThisBillingCycle"`
			Renewing *float64 `json:"renewingEachBillingCycle"`
		} `json:"credits"`
	}
	if err := json.Unmarshal(data, &v); err != nil || v.Credits == nil ||
		v.Credits.Included == nil || v.Credits.Renewing == nil {
		return nil
	}
	return &core.UsageRecord{
		ConsumedUnits: *v.Credits.Included - *v.Credits.Renewing,
		UnitLimit:     *v.Credits.Included,
		LastUpdate:    now,
	}
}

func matchNestedCreditsUsed(data json.RawMessage, now time.Time) *core.UsageRecord {
	var v struct {
		Credits *struct {
			Used      *float64 `json:"used"`
			Available *float64 `json:"available"`
		} `json:"credits"`
	}
	if err := json.Unmarshal(data, &v); err != nil || v.Credits == nil ||
		v.Credits.Used == nil || v.Credits.Available == nil {
		return nil
	}
	return &core.UsageRecord{
		ConsumedUnits: *v.Credits.Used,
		UnitLimit:     *v.Credits.Used + *v.Credits.Available,
		LastUpdate:    now,
	}
}

func matchNestedUsage(data json.RawMessage, now time.Time) *core.UsageRecord {
	var v struct {
		Usage *struct {
			Used      *float64 `json:"used"`
			Limit     *float64 `json:"limit"`
			Total     *float64 `json:"total"`
			Daily     *float64 `json:"daily"`
			Monthly   *float64 `json:"monthly"`
			UpdatedAt string   `json:"updatedAt"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(data, &v); err != nil || v.Usage == nil || v.Usage.Used == nil {
		return nil
	}
	var limit float64
	switch {
	case v.Usage.Limit != nil:
		limit = *v.Usage.Limit
	case v.Usage.Total != nil:
		limit = *v.Usage.Total
	default:
		return nil
	}
	rec := &core.UsageRecord{
		ConsumedUnits: *v.Usage.Used,
		UnitLimit:     limit,
		DailyUnits:    v.Usage.Daily,
		MonthlyUnits:  v.Usage.Monthly,
		LastUpdate:    now,
	}
	if v.Usage.UpdatedAt != "" {
		if t, err := time.Parse(time.RFC3339, v.Usage.UpdatedAt); err == nil {
			rec.LastUpdate = t
		}
	}
	return rec
}

// matchRootAliases scans historically-used root field names. "usage" is
// probed as a bare number here; the object form belongs to matchNestedUsage,
// which runs earlier.
func matchRootAliases(data json.RawMessage, now time.Time) *core.UsageRecord {
	var v struct {
		Used       *float64        `json:"used"`
		TotalUsage *float64        `json:"totalUsage"`
		Usage      json.RawMessage `json:"usage"`
		Count      *float64        `json:"count"`
		Limit      *float64        `json:"limit"`
		Quota      *float64        `json:"quota"`
		MaxUsage   *float64        `json:"maxUsage"`
		Available  *float64        `json:"available"`
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return nil
	}

	var consumed *float64
	switch {
	case v.Used != nil:
		consumed = v.Used
	case v.TotalUsage != nil:
		consumed = v.TotalUsage
	case len(v.Usage) > 0:
		if f, err := strconv.ParseFloat(string(v.Usage), 64); err == nil {
			consumed = &f
		}
	}
	if consumed == nil && v.Count != nil {
		consumed = v.Count
	}
	if consumed == nil {
		return nil
	}

	limit := float64(DefaultUnitLimit)
	switch {
	case v.Limit != nil:
		limit = *v.Limit
	case v.Quota != nil:
		limit = *v.Quota
	case v.MaxUsage != nil:
		limit = *v.MaxUsage
	case v.Available != nil:
		limit = *consumed + *v.Available
	}

	return &core.UsageRecord{
		ConsumedUnits: *consumed,
		UnitLimit:     limit,
		LastUpdate:    now,
	}
}
