package driver

import "github.com/muesli/termenv"

// TermStyler colours lines for a terminal. Outputs without colour support
// (pipes, files, dumb terminals) get the lines unchanged.
func TermStyler(output *termenv.Output) Styler {
	return func(kind Kind, line string) string {
		s := output.String(line)
		switch kind {
		case KindPrompt:
			s = s.Bold()
		case KindComputer:
			s = s.Foreground(output.Color("6"))
		case KindError:
			s = s.Foreground(output.Color("1"))
		case KindResult:
			s = s.Bold().Foreground(output.Color("2"))
		}
		return s.String()
	}
}
