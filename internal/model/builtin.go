package model

func init() {
	registerBuiltinNeurons()
	registerBuiltinSynapses()
	registerBuiltinCurrentSources()
	registerBuiltinInitSnippets()
}

func registerBuiltinNeurons() {
	Builtins.Neurons.MustRegister("LIF", &NeuronModel{
		Snippet: Snippet{
			Name:       "LIF",
			ParamNames: []string{"C", "TauM", "Vrest", "Vreset", "Vthresh", "Ioffset", "TauRefrac"},
			DerivedParams: []DerivedParam{
				{Name: "ExpTC", Expr: "exp(-DT / TauM)"},
				{Name: "Rmembrane", Expr: "TauM / C"},
			},
		},
		Vars: []Var{{Name: "V", Type: "scalar"}, {Name: "RefracTime", Type: "scalar"}},
		SimCode: "if ($(RefracTime) <= 0.0) {\n" +
			"  scalar alpha = (($(Isyn) + $(Ioffset)) * $(Rmembrane)) + $(Vrest);\n" +
			"  $(V) = alpha - ($(ExpTC) * (alpha - $(V)));\n" +
			"}\n" +
			"else {\n" +
			"  $(RefracTime) -= DT;\n" +
			"}\n",
		ThresholdConditionCode: "$(RefracTime) <= 0.0 && $(V) >= $(Vthresh)",
		ResetCode:              "$(V) = $(Vreset);\n$(RefracTime) = $(TauRefrac);\n",
	})

	Builtins.Neurons.MustRegister("Izhikevich", &NeuronModel{
		Snippet: Snippet{Name: "Izhikevich", ParamNames: []string{"a", "b", "c", "d"}},
		Vars:    []Var{{Name: "V", Type: "scalar"}, {Name: "U", Type: "scalar"}},
		SimCode: "if ($(V) >= 30.0) {\n" +
			"  $(V) = $(c);\n" +
			"  $(U) += $(d);\n" +
			"}\n" +
			"$(V) += 0.5 * (0.04 * $(V) * $(V) + 5.0 * $(V) + 140.0 - $(U) + $(Isyn)) * DT;\n" +
			"$(V) += 0.5 * (0.04 * $(V) * $(V) + 5.0 * $(V) + 140.0 - $(U) + $(Isyn)) * DT;\n" +
			"$(U) += $(a) * ($(b) * $(V) - $(U)) * DT;\n",
		ThresholdConditionCode: "$(V) >= 29.99",
	})

	Builtins.Neurons.MustRegister("Poisson", &NeuronModel{
		Snippet: Snippet{
			Name:          "Poisson",
			ParamNames:    []string{"rate"},
			DerivedParams: []DerivedParam{{Name: "isi", Expr: "1000.0 / (rate * DT)"}},
		},
		Vars: []Var{{Name: "timeStepToSpike", Type: "scalar"}},
		SimCode: "if ($(timeStepToSpike) <= 0.0) {\n" +
			"  $(timeStepToSpike) += $(isi) * $(gennrand_exponential);\n" +
			"}\n" +
			"$(timeStepToSpike) -= 1.0;\n",
		ThresholdConditionCode: "$(timeStepToSpike) <= 0.0",
	})

	Builtins.Neurons.MustRegister("SpikeSource", &NeuronModel{
		Snippet:                Snippet{Name: "SpikeSource"},
		ThresholdConditionCode: "0",
	})
}

func registerBuiltinSynapses() {
	Builtins.WeightUpdates.MustRegister("StaticPulse", &WeightUpdateModel{
		Snippet: Snippet{Name: "StaticPulse"},
		Vars:    []Var{{Name: "g", Type: "scalar"}},
		SimCode: "$(addToInSyn, $(g));\n",
	})

	Builtins.WeightUpdates.MustRegister("StaticPulseDendriticDelay", &WeightUpdateModel{
		Snippet: Snippet{Name: "StaticPulseDendriticDelay"},
		Vars:    []Var{{Name: "g", Type: "scalar"}, {Name: "d", Type: "uint8_t"}},
		SimCode: "$(addToInSynDelay, $(g), $(d));\n",
	})

	Builtins.WeightUpdates.MustRegister("StaticGraded", &WeightUpdateModel{
		Snippet:                     Snippet{Name: "StaticGraded", ParamNames: []string{"Epre", "Vslope"}},
		Vars:                        []Var{{Name: "g", Type: "scalar"}},
		EventCode:                   "$(addToInSyn, DT * $(g) * fmax(0.0, tanh(($(V_pre) - $(Epre)) / $(Vslope))));\n",
		EventThresholdConditionCode: "$(V_pre) > $(Epre)",
	})

	Builtins.WeightUpdates.MustRegister("STDPAdditive", &WeightUpdateModel{
		Snippet: Snippet{
			Name:       "STDPAdditive",
			ParamNames: []string{"tauPlus", "tauMinus", "Aplus", "Aminus", "Wmin", "Wmax"},
		},
		Vars:     []Var{{Name: "g", Type: "scalar"}},
		PreVars:  []Var{{Name: "preTrace", Type: "scalar"}},
		PostVars: []Var{{Name: "postTrace", Type: "scalar"}},
		SimCode: "$(addToInSyn, $(g));\n" +
			"const scalar dt = $(t) - $(sT_post);\n" +
			"if (dt > 0) {\n" +
			"  const scalar timing = exp(-dt / $(tauMinus));\n" +
			"  const scalar newWeight = $(g) - ($(Aminus) * $(postTrace) * timing);\n" +
			"  $(g) = fmin($(Wmax), fmax($(Wmin), newWeight));\n" +
			"}\n",
		LearnPostCode: "const scalar dt = $(t) - $(sT_pre);\n" +
			"if (dt > 0) {\n" +
			"  const scalar timing = exp(-dt / $(tauPlus));\n" +
			"  const scalar newWeight = $(g) + ($(Aplus) * $(preTrace) * timing);\n" +
			"  $(g) = fmin($(Wmax), fmax($(Wmin), newWeight));\n" +
			"}\n",
		PreSpikeCode:          "$(preTrace) += 1.0;\n",
		PostSpikeCode:         "$(postTrace) += 1.0;\n",
		PreSpikeTimeRequired:  true,
		PostSpikeTimeRequired: true,
	})

	Builtins.WeightUpdates.MustRegister("ContinuousGap", &WeightUpdateModel{
		Snippet:             Snippet{Name: "ContinuousGap"},
		Vars:                []Var{{Name: "g", Type: "scalar"}},
		SynapseDynamicsCode: "$(addToInSyn, $(g) * ($(V_pre) - $(V_post)));\n",
	})

	Builtins.Postsynaptic.MustRegister("ExpCurr", &PostsynapticModel{
		Snippet: Snippet{
			Name:       "ExpCurr",
			ParamNames: []string{"tau"},
			DerivedParams: []DerivedParam{
				{Name: "expDecay", Expr: "exp(-DT / tau)"},
				{Name: "init", Expr: "(tau * (1.0 - exp(-DT / tau))) / DT"},
			},
		},
		DecayCode:      "$(inSyn) *= $(expDecay);\n",
		ApplyInputCode: "$(Isyn) += $(init) * $(inSyn);\n",
	})

	Builtins.Postsynaptic.MustRegister("ExpCond", &PostsynapticModel{
		Snippet: Snippet{
			Name:          "ExpCond",
			ParamNames:    []string{"tau", "E"},
			DerivedParams: []DerivedParam{{Name: "expDecay", Expr: "exp(-DT / tau)"}},
		},
		DecayCode:      "$(inSyn) *= $(expDecay);\n",
		ApplyInputCode: "$(Isyn) += $(inSyn) * ($(E) - $(V));\n",
	})

	Builtins.Postsynaptic.MustRegister("DeltaCurr", &PostsynapticModel{
		Snippet:        Snippet{Name: "DeltaCurr"},
		ApplyInputCode: "$(Isyn) += $(inSyn);\n$(inSyn) = 0;\n",
	})
}

func registerBuiltinCurrentSources() {
	Builtins.CurrentSource.MustRegister("DC", &CurrentSourceModel{
		Snippet:       Snippet{Name: "DC", ParamNames: []string{"amp"}},
		InjectionCode: "$(injectCurrent, $(amp));\n",
	})

	Builtins.CurrentSource.MustRegister("GaussianNoise", &CurrentSourceModel{
		Snippet:       Snippet{Name: "GaussianNoise", ParamNames: []string{"mean", "sd"}},
		InjectionCode: "$(injectCurrent, $(mean) + $(gennrand_normal) * $(sd));\n",
	})

	Builtins.CurrentSource.MustRegister("PoissonExp", &CurrentSourceModel{
		Snippet: Snippet{
			Name:       "PoissonExp",
			ParamNames: []string{"weight", "tauSyn", "rate"},
			DerivedParams: []DerivedParam{
				{Name: "ExpDecay", Expr: "exp(-DT / tauSyn)"},
				{Name: "Init", Expr: "weight * (1.0 - exp(-DT / tauSyn)) * (tauSyn / DT)"},
				{Name: "ExpMinusLambda", Expr: "exp(-(rate / 1000.0) * DT)"},
			},
		},
		Vars: []Var{{Name: "current", Type: "scalar"}},
		InjectionCode: "scalar p = 1.0f;\n" +
			"unsigned int numSpikes = 0;\n" +
			"do {\n" +
			"  numSpikes++;\n" +
			"  p *= $(gennrand_uniform);\n" +
			"} while (p > $(ExpMinusLambda));\n" +
			"$(current) += $(Init) * (scalar)(numSpikes - 1);\n" +
			"$(injectCurrent, $(current));\n" +
			"$(current) *= $(ExpDecay);\n",
	})
}

func registerBuiltinInitSnippets() {
	Builtins.InitVars.MustRegister("Uninitialised", &InitVarSnippet{
		Snippet: Snippet{Name: "Uninitialised"},
	})
	Builtins.InitVars.MustRegister("Constant", &InitVarSnippet{
		Snippet: Snippet{Name: "Constant", ParamNames: []string{"constant"}},
		Code:    "$(value) = $(constant);\n",
	})
	Builtins.InitVars.MustRegister("Uniform", &InitVarSnippet{
		Snippet: Snippet{Name: "Uniform", ParamNames: []string{"min", "max"}},
		Code:    "$(value) = $(min) + ($(gennrand_uniform) * ($(max) - $(min)));\n",
	})
	Builtins.InitVars.MustRegister("Normal", &InitVarSnippet{
		Snippet: Snippet{Name: "Normal", ParamNames: []string{"mean", "sd"}},
		Code:    "$(value) = $(mean) + ($(gennrand_normal) * $(sd));\n",
	})
	Builtins.InitVars.MustRegister("Exponential", &InitVarSnippet{
		Snippet: Snippet{Name: "Exponential", ParamNames: []string{"lambda"}},
		Code:    "$(value) = $(lambda) * $(gennrand_exponential);\n",
	})

	Builtins.Connectivity.MustRegister("Uninitialised", &InitSparseConnectivitySnippet{
		Snippet: Snippet{Name: "Uninitialised"},
	})
	Builtins.Connectivity.MustRegister("OneToOne", &InitSparseConnectivitySnippet{
		Snippet:      Snippet{Name: "OneToOne"},
		RowBuildCode: "$(addSynapse, $(id_pre));\n$(endRow);\n",
	})
	Builtins.Connectivity.MustRegister("FixedProbability", &InitSparseConnectivitySnippet{
		Snippet: Snippet{
			Name:          "FixedProbability",
			ParamNames:    []string{"prob"},
			DerivedParams: []DerivedParam{{Name: "probLogRecip", Expr: "1.0 / log(1.0 - prob)"}},
		},
		RowBuildCode: "const scalar u = $(gennrand_uniform);\n" +
			"prevJ += (1 + (int)(log(u) * $(probLogRecip)));\n" +
			"if (prevJ < $(num_post)) {\n" +
			"  $(addSynapse, prevJ + $(id_post_begin));\n" +
			"}\n" +
			"else {\n" +
			"  $(endRow);\n" +
			"}\n",
	})
	Builtins.Connectivity.MustRegister("FixedProbabilityNoAutapse", &InitSparseConnectivitySnippet{
		Snippet: Snippet{
			Name:          "FixedProbabilityNoAutapse",
			ParamNames:    []string{"prob"},
			DerivedParams: []DerivedParam{{Name: "probLogRecip", Expr: "1.0 / log(1.0 - prob)"}},
		},
		RowBuildCode: "int nextJ;\n" +
			"do {\n" +
			"  const scalar u = $(gennrand_uniform);\n" +
			"  nextJ = prevJ + (1 + (int)(log(u) * $(probLogRecip)));\n" +
			"} while (nextJ == $(id_pre));\n" +
			"prevJ = nextJ;\n" +
			"if (prevJ < $(num_post)) {\n" +
			"  $(addSynapse, prevJ + $(id_post_begin));\n" +
			"}\n" +
			"else {\n" +
			"  $(endRow);\n" +
			"}\n",
	})
	Builtins.Connectivity.MustRegister("FixedNumberTotalWithReplacement", &InitSparseConnectivitySnippet{
		Snippet: Snippet{
			Name:              "FixedNumberTotalWithReplacement",
			ParamNames:        []string{"total"},
			ExtraGlobalParams: []EGP{{Name: "preCalcRowLength", Type: "unsigned int*"}},
		},
		RowBuildCode: "if (c == 0) {\n" +
			"  $(endRow);\n" +
			"}\n" +
			"const scalar u = $(gennrand_uniform);\n" +
			"x *= pow(u, 1.0 / (scalar)c);\n" +
			"c--;\n" +
			"$(addSynapse, $(id_post_begin) + (unsigned int)((1.0 - x) * $(num_post)));\n",
		HostInitCode: "$(allocatepreCalcRowLength, $(num_pre));\n" +
			"unsigned int remaining = (unsigned int)$(total);\n" +
			"for (unsigned int i = 0; i < $(num_pre); i++) {\n" +
			"  const scalar p = 1.0 / (scalar)($(num_pre) - i);\n" +
			"  const unsigned int n = (i == ($(num_pre) - 1)) ? remaining : binomialInverseCDF(p, remaining);\n" +
			"  $(preCalcRowLength)[i] = n;\n" +
			"  remaining -= n;\n" +
			"}\n" +
			"$(pushpreCalcRowLength, $(num_pre));\n",
	})
}
