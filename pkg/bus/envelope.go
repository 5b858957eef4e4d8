// Package bus routes name-addressed runtime messages to subscribed handlers.
package bus

import "slices"

// Message is the envelope exchanged with the runtime. Name is the target
// service, Method the method name, Data the ordered argument list.
type Message struct {
	Name          string `json:"name"`
	Method        string `json:"method"`
	Data          []any  `json:"data"`
	Sender        string `json:"sender,omitempty"`
	SendingMethod string `json:"sendingMethod,omitempty"`
	MsgID         string `json:"msgId,omitempty"`
}

// NewMessage builds a message for target.method with args.
func NewMessage(target, method string, args ...any) Message {
	return Message{Name: target, Method: method, Data: args}
}

// Arg returns the i-th argument and whether it is present.
func (m Message) Arg(i int) (any, bool) {
	if i < 0 || i >= len(m.Data) {
		return nil, false
	}
	return m.Data[i], true
}

// clone returns a copy whose argument slice is not shared with m.
func (m Message) clone() Message {
	m.Data = slices.Clone(m.Data)
	return m
}

// Subscription identifies one interest registration.
type Subscription struct {
	SubscriberID string `json:"subscriberId"`
	Target       string `json:"target"`
	Method       string `json:"method"`
}

// Handler receives every message dispatched to a subscribed (target, method).
type Handler func(msg Message) error
