package equation

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

var ErrUnbalanced = errors.New("equation: unbalanced braces")

var symbols = map[string]string{
	"alpha": "α", "beta": "β", "gamma": "γ", "delta": "δ", "epsilon": "ε",
	"varepsilon": "ε", "zeta": "ζ", "eta": "η", "theta": "θ", "iota": "ι",
	"kappa": "κ", "lambda": "λ", "mu": "μ", "nu": "ν", "xi": "ξ", "pi": "π",
	"rho": "ρ", "sigma": "σ", "tau": "τ", "phi": "φ", "varphi": "φ", "chi": "χ",
	"psi": "ψ", "omega": "ω",
	"Gamma": "Γ", "Delta": "Δ", "Theta": "Θ", "Lambda": "Λ", "Xi": "Ξ", "Pi": "Π",
	"Sigma": "Σ", "Phi": "Φ", "Psi": "Ψ", "Omega": "Ω",
	"cdot": "·", "times": "×", "div": "÷", "pm": "±", "mp": "∓",
	"leq": "≤", "le": "≤", "geq": "≥", "ge": "≥", "neq": "≠", "ne": "≠",
	"approx": "≈", "equiv": "≡", "sim": "∼", "propto": "∝",
	"infty": "∞", "sum": "∑", "prod": "∏", "int": "∫", "oint": "∮",
	"partial": "∂", "nabla": "∇", "forall": "∀", "exists": "∃",
	"in": "∈", "notin": "∉", "subset": "⊂", "subseteq": "⊆", "cup": "∪", "cap": "∩",
	"emptyset": "∅", "to": "→", "rightarrow": "→", "leftarrow": "←",
	"Rightarrow": "⇒", "Leftarrow": "⇐", "leftrightarrow": "↔", "iff": "⇔",
	"degree": "°", "circ": "∘", "ldots": "…", "cdots": "⋯", "dots": "…",
	"hbar": "ħ", "ell": "ℓ", "angle": "∠", "perp": "⊥", "parallel": "∥",
	"sin": "sin", "cos": "cos", "tan": "tan", "log": "log", "ln": "ln", "exp": "exp",
	"lim": "lim", "max": "max", "min": "min",
}

var superscripts = map[rune]rune{
	'0': '⁰', '1': '¹', '2': '²', '3': '³', '4': '⁴', '5': '⁵', '6': '⁶', '7': '⁷',
	'8': '⁸', '9': '⁹', '+': '⁺', '-': '⁻', '=': '⁼', '(': '⁽', ')': '⁾', 'n': 'ⁿ', 'i': 'ⁱ',
}

var subscripts = map[rune]rune{
	'0': '₀', '1': '₁', '2': '₂', '3': '₃', '4': '₄', '5': '₅', '6': '₆', '7': '₇',
	'8': '₈', '9': '₉', '+': '₊', '-': '₋', '=': '₌', '(': '₍', ')': '₎',
	'a': 'ₐ', 'e': 'ₑ', 'o': 'ₒ', 'x': 'ₓ', 'i': 'ᵢ', 'j': 'ⱼ', 'n': 'ₙ',
}

// Linearize rewrites LaTeX markup as a single line of Unicode text.
func Linearize(markup string) (string, error) {
	p := &texParser{src: []rune(markup)}
	out, err := p.sequence(0)
	if err != nil {
		return "", err
	}
	return strings.Join(strings.Fields(out), " "), nil
}

type texParser struct {
	src []rune
	pos int
}

func (p *texParser) eof() bool { return p.pos >= len(p.src) }

// sequence reads until the closing rune (consumed) or end of input when
// closing is zero.
func (p *texParser) sequence(closing rune) (string, error) {
	var b strings.Builder
	for {
		if p.eof() {
			if closing != 0 {
				return "", ErrUnbalanced
			}
			return b.String(), nil
		}
		r := p.src[p.pos]
		switch {
		case closing != 0 && r == closing:
			p.pos++
			return b.String(), nil
		case r == '}':
			return "", fmt.Errorf("%w: unexpected } at %d", ErrUnbalanced, p.pos)
		case r == '{':
			p.pos++
			inner, err := p.sequence('}')
			if err != nil {
				return "", err
			}
			b.WriteString(inner)
		case r == '\\':
			s, err := p.command()
			if err != nil {
				return "", err
			}
			b.WriteString(s)
		case r == '^' || r == '_':
			p.pos++
			arg, err := p.argument()
			if err != nil {
				return "", err
			}
			if r == '^' {
				b.WriteString(script(arg, superscripts, "^"))
			} else {
				b.WriteString(script(arg, subscripts, "_"))
			}
		case r == '&' || r == '~':
			p.pos++
			b.WriteByte(' ')
		case r == '$':
			p.pos++
		default:
			p.pos++
			b.WriteRune(r)
		}
	}
}

// argument reads one macro argument: a braced group, a command or a rune.
func (p *texParser) argument() (string, error) {
	for !p.eof() && unicode.IsSpace(p.src[p.pos]) {
		p.pos++
	}
	if p.eof() {
		return "", nil
	}
	switch p.src[p.pos] {
	case '{':
		p.pos++
		return p.sequence('}')
	case '\\':
		return p.command()
	case '}':
		return "", fmt.Errorf("%w: missing argument at %d", ErrUnbalanced, p.pos)
	}
	r := p.src[p.pos]
	p.pos++
	return string(r), nil
}

func (p *texParser) command() (string, error) {
	p.pos++ // backslash
	if p.eof() {
		return "", nil
	}
	start := p.pos
	for !p.eof() && unicode.IsLetter(p.src[p.pos]) {
		p.pos++
	}
	if p.pos == start {
		r := p.src[p.pos]
		p.pos++
		switch r {
		case ',', ';', ':', ' ', '\\':
			return " ", nil
		case '!':
			return "", nil
		default:
			return string(r), nil
		}
	}
	name := string(p.src[start:p.pos])
	switch name {
	case "frac", "dfrac", "tfrac":
		num, err := p.argument()
		if err != nil {
			return "", err
		}
		den, err := p.argument()
		if err != nil {
			return "", err
		}
		return group(num) + "/" + group(den), nil
	case "sqrt":
		p.skipOptional()
		arg, err := p.argument()
		if err != nil {
			return "", err
		}
		return "√" + group(arg), nil
	case "text", "mathrm", "mathbf", "mathit", "mathbb", "mathcal", "operatorname", "boldsymbol", "vec", "hat", "bar":
		return p.argument()
	case "left", "right", "big", "Big", "bigg", "Bigg", "displaystyle", "textstyle", "quad", "qquad":
		if name == "quad" || name == "qquad" {
			return " ", nil
		}
		return "", nil
	}
	if s, ok := symbols[name]; ok {
		return s, nil
	}
	return name, nil
}

func (p *texParser) skipOptional() {
	if p.eof() || p.src[p.pos] != '[' {
		return
	}
	for !p.eof() && p.src[p.pos] != ']' {
		p.pos++
	}
	if !p.eof() {
		p.pos++
	}
}

func group(s string) string {
	if len([]rune(s)) <= 1 {
		return s
	}
	return "(" + s + ")"
}

func script(arg string, table map[rune]rune, marker string) string {
	var b strings.Builder
	for _, r := range arg {
		m, ok := table[r]
		if !ok {
			return marker + group(arg)
		}
		b.WriteRune(m)
	}
	return b.String()
}
