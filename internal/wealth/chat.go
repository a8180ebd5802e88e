package wealth

import "strconv"

// Placeholder is one {token} -> value pair of the chat view.
type Placeholder struct {
	Token string
	Value string
}

// FormatValue renders a rounded value with exactly two decimals.
func FormatValue(v float64) string {
	return strconv.FormatFloat(Round2(v), 'f', 2, 64)
}

// Chat returns the chat placeholders of the record, built on first use.
func (r *Record) Chat() []Placeholder {
	r.chatOnce.Do(func() {
		ph := []Placeholder{{Token: "{name}", Value: r.Name}}
		for _, c := range r.cats {
			ph = append(ph, Placeholder{Token: "{" + c.Name + "_wealth}", Value: FormatValue(c.Value)})
		}
		r.chat = ph
	})
	return r.chat
}
