package rules

// Status is the validation outcome of a classified item.
type Status string

const (
	StatusValid     Status = "VALID"
	StatusDivergent Status = "DIVERGENT"
)

// Regime is the IBS/CBS tax regime tag.
type Regime string

const (
	RegimeNormal      Regime = "NORMAL"
	RegimeImmune      Regime = "IMUNE"
	RegimeReducedRate Regime = "ALIQUOTA_REDUZIDA"
	RegimeCashback    Regime = "CASHBACK"
)

// Flag is a tri-state fiscal tag used for benefit eligibility and the secondary code requirement.
type Flag string

const (
	FlagYes      Flag = "SIM"
	FlagNo       Flag = "NAO"
	FlagPossible Flag = "POSSIVEL"
	FlagCheck    Flag = "VERIFICAR"
)

// Rates in percent.
const (
	StandardRate = 26.5
	ReducedRate  = 10.6
	ZeroRate     = 0.0
)

// DefaultConfidence is assigned when no rule adjusts it.
const DefaultConfidence = 75.0

// Result is the outcome of classifying one item.
type Result struct {
	Status                 Status
	SuggestedCode          string
	SuggestedSecondaryCode *string
	SecondaryRequirement   Flag
	Explanation            string
	Confidence             float64
	Regime                 Regime
	PrimaryRate            float64
	SecondaryRate          float64
	Benefit                Flag
	BenefitDescription     *string
	LegalCitation          *string
}

func defaultResult(in Input) Result {
	return Result{
		Status:                 StatusValid,
		SuggestedCode:          in.Code,
		SuggestedSecondaryCode: in.SecondaryCode,
		SecondaryRequirement:   FlagNo,
		Explanation:            "Classificação fiscal compatível com a descrição.",
		Confidence:             DefaultConfidence,
		Regime:                 RegimeNormal,
		PrimaryRate:            StandardRate,
		SecondaryRate:          ZeroRate,
		Benefit:                FlagNo,
	}
}

func (r *Result) markDivergent(suggestedCode string) {
	r.Status = StatusDivergent
	if suggestedCode != "" {
		r.SuggestedCode = suggestedCode
	}
}

func (r *Result) setBenefit(flag Flag, description, citation string) {
	r.Benefit = flag
	r.BenefitDescription = &description
	r.LegalCitation = &citation
}
