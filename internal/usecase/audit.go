package usecase

import (
	"math"
	"sort"
	"strings"

	"TradeGP/internal/domain/models"
	"TradeGP/internal/services/features"
)

// Readiness thresholds for the data audit.
const (
	auditMinVolume        = 1000
	auditMinPnLRecords    = 500
	auditMinPnLStd        = 5.0
	auditMinUniquePnL     = 20
	auditFullCoverage     = 0.8
	auditPartialCoverage  = 0.5
	auditMinKeys          = 2
	auditBalancedPerKey   = 100
	auditReadyPercentage  = 60.0
	auditStrongPercentage = 80.0
)

type AuditCheck struct {
	Name   string `json:"name"`
	Score  int    `json:"score"`
	Max    int    `json:"max"`
	Detail string `json:"detail"`
}

type KeyCount struct {
	Key     string  `json:"key"`
	Count   int     `json:"count"`
	MeanPnL float64 `json:"mean_pnl"`
	WinRate float64 `json:"win_rate"`
}

// AuditReport rates how ready a record set is for training.
type AuditReport struct {
	TotalRecords int              `json:"total_records"`
	PnL          features.Summary `json:"pnl"`
	WinRate      float64          `json:"win_rate"`
	FeatureRate  float64          `json:"feature_rate"`
	Keys         []KeyCount       `json:"keys"`
	Checks       []AuditCheck     `json:"checks"`
	Score        int              `json:"score"`
	MaxScore     int              `json:"max_score"`
	Percentage   float64          `json:"percentage"`
	Ready        bool             `json:"ready"`
	Caveats      bool             `json:"caveats"`
	Issues       []string         `json:"issues,omitempty"`
}

// AuditVectors scores volume, PnL quality, feature coverage and key
// balance. Schema marker rows are ignored.
func AuditVectors(vectors []models.TradeVector) *AuditReport {
	r := &AuditReport{MaxScore: 100}

	var pnl []float64
	withFeatures := 0
	byKey := make(map[string][]float64)
	for i := range vectors {
		v := &vectors[i]
		if strings.EqualFold(v.Instrument, "SCHEMA") {
			continue
		}
		r.TotalRecords++
		if !math.IsNaN(v.PnL) && !math.IsInf(v.PnL, 0) {
			pnl = append(pnl, v.PnL)
		}
		if _, ok := v.FeatureMap(); ok {
			withFeatures++
		}
		k := v.Instrument + "_" + v.Direction
		if key, err := models.NewModelKey(v.Instrument, v.Direction); err == nil {
			k = key.String()
		}
		byKey[k] = append(byKey[k], v.PnL)
	}

	r.PnL = features.Summarize(pnl)
	r.WinRate = winRate(pnl)
	if r.TotalRecords > 0 {
		r.FeatureRate = float64(withFeatures) / float64(r.TotalRecords)
	}
	for k, vals := range byKey {
		r.Keys = append(r.Keys, KeyCount{
			Key:     k,
			Count:   len(vals),
			MeanPnL: features.Summarize(vals).Mean,
			WinRate: winRate(vals),
		})
	}
	sort.Slice(r.Keys, func(i, j int) bool {
		if r.Keys[i].Count != r.Keys[j].Count {
			return r.Keys[i].Count > r.Keys[j].Count
		}
		return r.Keys[i].Key < r.Keys[j].Key
	})

	r.add(r.volumeCheck())
	r.add(r.pnlCheck())
	r.add(r.coverageCheck())
	r.add(r.balanceCheck())

	r.Percentage = float64(r.Score) / float64(r.MaxScore) * 100
	r.Ready = r.Percentage >= auditReadyPercentage
	r.Caveats = r.Ready && r.Percentage < auditStrongPercentage
	return r
}

func (r *AuditReport) add(c AuditCheck, issue string) {
	r.Checks = append(r.Checks, c)
	r.Score += c.Score
	if issue != "" {
		r.Issues = append(r.Issues, issue)
	}
}

func (r *AuditReport) volumeCheck() (AuditCheck, string) {
	c := AuditCheck{Name: "volume", Max: 20}
	if r.TotalRecords >= auditMinVolume {
		c.Score = 20
		c.Detail = "at least 1000 records"
		return c, ""
	}
	c.Detail = "fewer than 1000 records"
	return c, "insufficient data volume"
}

func (r *AuditReport) pnlCheck() (AuditCheck, string) {
	c := AuditCheck{Name: "pnl_quality", Max: 30}
	switch {
	case r.PnL.Count < auditMinPnLRecords:
		c.Detail = "fewer than 500 records with pnl"
		return c, "insufficient pnl data"
	case r.PnL.Std > auditMinPnLStd && r.PnL.Unique >= auditMinUniquePnL:
		c.Score = 30
		c.Detail = "pnl varies enough"
		return c, ""
	default:
		c.Score = 15
		c.Detail = "limited pnl variance or diversity"
		return c, "pnl data quality concerns"
	}
}

func (r *AuditReport) coverageCheck() (AuditCheck, string) {
	c := AuditCheck{Name: "feature_coverage", Max: 25}
	switch {
	case r.FeatureRate >= auditFullCoverage:
		c.Score = 25
		c.Detail = "features on at least 80% of records"
		return c, ""
	case r.FeatureRate >= auditPartialCoverage:
		c.Score = 15
		c.Detail = "features on 50-80% of records"
		return c, "limited feature coverage"
	default:
		c.Detail = "features on under 50% of records"
		return c, "insufficient feature coverage"
	}
}

func (r *AuditReport) balanceCheck() (AuditCheck, string) {
	c := AuditCheck{Name: "key_balance", Max: 25}
	if len(r.Keys) < auditMinKeys {
		c.Detail = "fewer than 2 instrument/direction keys"
		return c, "insufficient data diversity"
	}
	smallest := r.Keys[len(r.Keys)-1].Count
	if smallest >= auditBalancedPerKey {
		c.Score = 25
		c.Detail = "every key has at least 100 records"
		return c, ""
	}
	c.Score = 15
	c.Detail = "some keys have fewer than 100 records"
	return c, "unbalanced data distribution"
}

func winRate(pnl []float64) float64 {
	if len(pnl) == 0 {
		return 0
	}
	wins := 0
	for _, v := range pnl {
		if v > 0 {
			wins++
		}
	}
	return float64(wins) / float64(len(pnl))
}
