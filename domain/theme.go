package domain

// ThemeValues are space separated RGB triplets, e.g. "236 72 153".
type ThemeValues struct {
	Primary    string `json:"primary" validate:"required"`
	Secondary  string `json:"secondary" validate:"required"`
	Accent     string `json:"accent" validate:"required"`
	Background string `json:"background" validate:"required"`
	Text       string `json:"text" validate:"required"`
	CardBg     string `json:"cardBg" validate:"required"`
}

type Theme struct {
	Name     string
	Values   ThemeValues
	Gradient string
	IsDark   bool
}

type themePair struct {
	light Theme
	dark  Theme
}

var themes = map[Alias]themePair{
	Angy: {
		light: Theme{
			Name: "Angy Light",
			Values: ThemeValues{
				Primary:    "236 72 153",
				Secondary:  "192 132 252",
				Accent:     "236 72 153",
				Background: "253 242 248",
				Text:       "17 24 39",
				CardBg:     "255 255 255",
			},
			Gradient: "from-pink-100 via-purple-100 to-indigo-100",
		},
		dark: Theme{
			Name: "Angy Dark",
			Values: ThemeValues{
				Primary:    "219 39 119",
				Secondary:  "147 51 234",
				Accent:     "244 114 182",
				Background: "17 24 39",
				Text:       "243 244 246",
				CardBg:     "31 41 55",
			},
			Gradient: "from-gray-900 via-purple-950 to-pink-950",
			IsDark:   true,
		},
	},
	Bozy: {
		light: Theme{
			Name: "Bozy Light",
			Values: ThemeValues{
				Primary:    "37 99 235",
				Secondary:  "6 182 212",
				Accent:     "37 99 235",
				Background: "248 250 252",
				Text:       "17 24 39",
				CardBg:     "255 255 255",
			},
			Gradient: "from-slate-100 via-blue-50 to-cyan-50",
		},
		dark: Theme{
			Name: "Bozy Dark",
			Values: ThemeValues{
				Primary:    "59 130 246",
				Secondary:  "8 145 178",
				Accent:     "96 165 250",
				Background: "15 23 42",
				Text:       "243 244 246",
				CardBg:     "30 41 59",
			},
			Gradient: "from-slate-900 via-blue-950 to-cyan-950",
			IsDark:   true,
		},
	},
}

// BaseTheme falls back to Angy's themes when no user is known.
func BaseTheme(user Alias, dark bool) Theme {
	pair, ok := themes[user]
	if !ok {
		pair = themes[Angy]
	}
	if dark {
		return pair.dark
	}
	return pair.light
}

// ResolveTheme overrides the base values with the custom colors when set.
func ResolveTheme(user Alias, dark bool, custom *ThemeValues) Theme {
	theme := BaseTheme(user, dark)
	if custom != nil {
		theme.Values = *custom
	}
	return theme
}
