package rules

// Pass identifies which evaluation pass a rule belongs to.
type Pass string

const (
	// PassCategory rules are exclusive: the highest-priority match is the only one applied.
	PassCategory Pass = "category"
	// PassCorrection rules always run after the category pass; every match is applied.
	PassCorrection Pass = "correction"
)

// Rule maps a set of description keywords to changes on a Result.
type Rule struct {
	Name     string
	Pass     Pass
	Priority int
	Keywords []string
	Apply    func(in Input, r *Result)
}

func (rule Rule) matches(in Input) bool {
	return containsAny(in.text, rule.Keywords)
}

// DefaultRules returns the built-in IBS/CBS category rules and generic code corrections.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:     "cesta-basica",
			Pass:     PassCategory,
			Priority: 80,
			Keywords: []string{"arroz", "feijao", "leite", "pao", "farinha", "macarrao", "acucar", "sal", "cafe", "oleo", "manteiga", "margarina"},
			Apply: func(in Input, r *Result) {
				r.Regime = RegimeImmune
				r.PrimaryRate = ZeroRate
				r.SecondaryRate = ZeroRate
				r.setBenefit(FlagYes, "Cesta básica nacional - Alíquota zero", "LC 214/2025 Art. 18, §1º")
				r.Explanation = "Produto da cesta básica tem imunidade tributária (alíquota 0% IBS/CBS)."
				r.Confidence = 95
				if !hasAnyPrefix(in.digits, "1006", "1101", "0401", "1507", "1701") {
					r.markDivergent("")
					r.Explanation += " ATENÇÃO: NCM pode estar incorreto para produto alimentício."
				}
			},
		},
		{
			Name:     "medicamentos",
			Pass:     PassCategory,
			Priority: 70,
			Keywords: []string{"medicamento", "remedio", "farmacia", "comprimido", "capsula"},
			Apply: func(in Input, r *Result) {
				r.Regime = RegimeReducedRate
				r.PrimaryRate = ReducedRate
				r.SecondaryRate = ZeroRate
				r.setBenefit(FlagYes, "Medicamentos - Redução de 60%", "LC 214/2025 Art. 18, §2º, I")
				r.Confidence = 90
				if !hasAnyPrefix(in.digits, "3004") {
					r.markDivergent("3004.90.99")
					r.Explanation = "Medicamentos devem ser classificados no capítulo 30.04 do NCM."
				}
			},
		},
		{
			Name:     "dispositivos-medicos",
			Pass:     PassCategory,
			Priority: 60,
			Keywords: []string{"seringa", "marca-passo", "protese", "cadeira de rodas", "equipamento medico"},
			Apply: func(in Input, r *Result) {
				r.Regime = RegimeReducedRate
				r.PrimaryRate = ReducedRate
				r.SecondaryRate = ZeroRate
				r.setBenefit(FlagYes, "Dispositivos médicos - Redução de 60%", "LC 214/2025 Art. 18, §2º, II")
				r.Confidence = 88
			},
		},
		{
			Name:     "educacao",
			Pass:     PassCategory,
			Priority: 50,
			Keywords: []string{"livro", "caderno", "material escolar", "apostila"},
			Apply: func(in Input, r *Result) {
				r.Regime = RegimeReducedRate
				r.PrimaryRate = ReducedRate
				r.SecondaryRate = ZeroRate
				r.setBenefit(FlagYes, "Materiais educacionais - Redução de 60%", "LC 214/2025 Art. 18, §2º, III")
				r.Confidence = 85
			},
		},
		{
			Name:     "energia-eletrica",
			Pass:     PassCategory,
			Priority: 40,
			Keywords: []string{"energia eletrica", "fornecimento de energia"},
			Apply: func(in Input, r *Result) {
				r.Regime = RegimeCashback
				r.PrimaryRate = StandardRate
				r.SecondaryRate = ZeroRate
				r.setBenefit(FlagPossible, "Cashback para baixa renda (até 100kWh/mês)", "LC 214/2025 Art. 19")
				r.Explanation = "Energia elétrica tem cashback para famílias de baixa renda inscritas no CadÚnico."
				r.Confidence = 80
			},
		},
		{
			Name:     "combustiveis",
			Pass:     PassCategory,
			Priority: 30,
			Keywords: []string{"gasolina", "diesel", "etanol", "combustivel", "gnv"},
			Apply: func(in Input, r *Result) {
				r.SecondaryRequirement = FlagYes
				r.Regime = RegimeNormal
				r.PrimaryRate = StandardRate
				r.Confidence = 92
				if !in.hasSecondary() {
					r.SuggestedSecondaryCode = strPtr("06.001.00")
					r.markDivergent("")
					r.Explanation = "CEST é OBRIGATÓRIO para combustíveis (Substituição Tributária). Sugestão: 06.001.00"
				}
				if !hasAnyPrefix(in.digits, "2710") {
					r.markDivergent("2710.12.51")
					r.Explanation += " | NCM incorreto para combustível."
				}
			},
		},
		{
			Name:     "bebidas-alcoolicas",
			Pass:     PassCategory,
			Priority: 20,
			Keywords: []string{"cerveja", "vinho", "whisky", "vodka", "cachaca"},
			Apply: func(in Input, r *Result) {
				r.SecondaryRequirement = FlagYes
				r.Regime = RegimeNormal
				r.PrimaryRate = StandardRate
				r.Explanation = "Bebidas alcoólicas: CEST obrigatório + Imposto Seletivo adicional."
				r.Confidence = 90
				if !in.hasSecondary() {
					r.SuggestedSecondaryCode = strPtr("02.001.00")
					r.markDivergent("")
					r.Explanation += " | CEST obrigatório não informado."
				}
			},
		},
		{
			Name:     "industrializados",
			Pass:     PassCategory,
			Priority: 10,
			Keywords: []string{"refrigerante", "sorvete", "biscoito wafer"},
			Apply: func(in Input, r *Result) {
				r.SecondaryRequirement = FlagCheck
				r.Explanation = "Produto pode exigir CEST dependendo da operação (verifique legislação estadual)."
			},
		},

		// Corrections: a higher priority is applied later and wins any field both touch.
		{
			Name:     "chocolate",
			Pass:     PassCorrection,
			Priority: 10,
			Keywords: []string{"chocolate"},
			Apply:    correction("1806", "1806.32.00", "Produto descrito como 'chocolate' deve estar no capítulo 18.06 do NCM.", 85),
		},
		{
			Name:     "biscoitos",
			Pass:     PassCorrection,
			Priority: 20,
			Keywords: []string{"wafer", "biscoito"},
			Apply:    correction("1905", "1905.90.00", "Wafers e biscoitos devem estar no capítulo 19.05 (Produtos de padaria).", 90),
		},
		{
			Name:     "computadores",
			Pass:     PassCorrection,
			Priority: 30,
			Keywords: []string{"notebook", "laptop", "computador"},
			Apply:    correction("8471", "8471.30.12", "Computadores portáteis devem estar no capítulo 84.71.", 95),
		},
	}
}

// correction overrides the code when it does not start with the expected chapter prefix.
func correction(prefix, suggested, explanation string, confidence float64) func(Input, *Result) {
	return func(in Input, r *Result) {
		if hasAnyPrefix(in.digits, prefix) {
			return
		}
		r.markDivergent(suggested)
		r.Explanation = explanation
		r.Confidence = confidence
	}
}

func strPtr(s string) *string {
	return &s
}
