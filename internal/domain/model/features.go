package model

// Canonical feature column names shared by the dataset file, the feature
// builder and the preprocessing pipeline.
const (
	ColJobRoleName       = "job_role_name"
	ColSkillName         = "skill_name"
	ColSkillCategory     = "skill_category"
	ColJobDepartment     = "job_department"
	ColTrendScore        = "trend_score"
	ColInternalUsage     = "internal_usage"
	ColTrainingRequests  = "training_requests"
	ColScarcityIndex     = "scarcity_index"
	ColHiringDifficulty  = "hiring_difficulty"
	ColAvgSalaryK        = "avg_salary_k"
	ColEconomicIndicator = "economic_indicator"
	ColLabel             = "future_need_level"
)

// CategoricalColumns returns the categorical feature names in canonical order.
func CategoricalColumns() []string {
	return []string{ColJobRoleName, ColSkillName, ColSkillCategory, ColJobDepartment}
}

// NumericColumns returns the numeric feature names in canonical order.
func NumericColumns() []string {
	return []string{
		ColTrendScore, ColInternalUsage, ColTrainingRequests, ColScarcityIndex,
		ColHiringDifficulty, ColAvgSalaryK, ColEconomicIndicator,
	}
}

// FeatureRecord is one row of model input. Numeric fields are normalized to
// their documented ranges: trend_score, internal_usage, scarcity_index and
// hiring_difficulty live in [0,1]; training_requests is a non-negative
// count; avg_salary_k and economic_indicator are raw scale. Immutable once
// built.
type FeatureRecord struct {
	JobRoleName   string `json:"job_role_name"`
	SkillName     string `json:"skill_name"`
	SkillCategory string `json:"skill_category"`
	JobDepartment string `json:"job_department"`

	TrendScore        float64 `json:"trend_score"`
	InternalUsage     float64 `json:"internal_usage"`
	TrainingRequests  float64 `json:"training_requests"`
	ScarcityIndex     float64 `json:"scarcity_index"`
	HiringDifficulty  float64 `json:"hiring_difficulty"`
	AvgSalaryK        float64 `json:"avg_salary_k"`
	EconomicIndicator float64 `json:"economic_indicator"`
}

// CategoricalValue returns the value of a categorical feature by column name.
func (r FeatureRecord) CategoricalValue(col string) string {
	switch col {
	case ColJobRoleName:
		return r.JobRoleName
	case ColSkillName:
		return r.SkillName
	case ColSkillCategory:
		return r.SkillCategory
	case ColJobDepartment:
		return r.JobDepartment
	default:
		return ""
	}
}

// NumericValue returns the value of a numeric feature by column name.
func (r FeatureRecord) NumericValue(col string) float64 {
	switch col {
	case ColTrendScore:
		return r.TrendScore
	case ColInternalUsage:
		return r.InternalUsage
	case ColTrainingRequests:
		return r.TrainingRequests
	case ColScarcityIndex:
		return r.ScarcityIndex
	case ColHiringDifficulty:
		return r.HiringDifficulty
	case ColAvgSalaryK:
		return r.AvgSalaryK
	case ColEconomicIndicator:
		return r.EconomicIndicator
	default:
		return 0
	}
}

// WithNumericValue returns a copy of the record with one numeric feature
// replaced. Used by occlusion-based attribution; the receiver is unchanged.
func (r FeatureRecord) WithNumericValue(col string, v float64) FeatureRecord {
	switch col {
	case ColTrendScore:
		r.TrendScore = v
	case ColInternalUsage:
		r.InternalUsage = v
	case ColTrainingRequests:
		r.TrainingRequests = v
	case ColScarcityIndex:
		r.ScarcityIndex = v
	case ColHiringDifficulty:
		r.HiringDifficulty = v
	case ColAvgSalaryK:
		r.AvgSalaryK = v
	case ColEconomicIndicator:
		r.EconomicIndicator = v
	}
	return r
}

// WithCategoricalValue returns a copy with one categorical feature replaced.
func (r FeatureRecord) WithCategoricalValue(col, v string) FeatureRecord {
	switch col {
	case ColJobRoleName:
		r.JobRoleName = v
	case ColSkillName:
		r.SkillName = v
	case ColSkillCategory:
		r.SkillCategory = v
	case ColJobDepartment:
		r.JobDepartment = v
	}
	return r
}
