package message

import "strings"

// Filter decides whether a message should be delivered to the handler.
type Filter interface {
	Match(Message) bool
}

// FilterFunc adapts a plain function to the Filter interface.
type FilterFunc func(Message) bool

func (f FilterFunc) Match(m Message) bool {
	return f(m)
}

// SenderContains matches messages whose sender contains the given substring.
func SenderContains(substr string) Filter {
	return FilterFunc(func(m Message) bool {
		return strings.Contains(m.Sender, substr)
	})
}

// SubjectContains matches messages whose subject contains the given substring.
func SubjectContains(substr string) Filter {
	return FilterFunc(func(m Message) bool {
		return strings.Contains(m.Subject, substr)
	})
}

// And matches when every filter matches. With no filters it matches everything.
func And(filters ...Filter) Filter {
	return FilterFunc(func(m Message) bool {
		for _, f := range filters {
			if !f.Match(m) {
				return false
			}
		}
		return true
	})
}

// Or matches when at least one filter matches.
func Or(filters ...Filter) Filter {
	return FilterFunc(func(m Message) bool {
		for _, f := range filters {
			if f.Match(m) {
				return true
			}
		}
		return false
	})
}
