// Package testtypes holds small services used by the container tests.
package testtypes

import (
	"context"
	"sync/atomic"
)

// Log records the order services are built and closed in.
type Log struct {
	events []string
}

func (l *Log) Add(event string) {
	l.events = append(l.events, event)
}

func (l *Log) Events() []string {
	return l.events
}

// A has no dependencies.
type A struct {
	Name string
}

func NewA(log *Log) *A {
	log.Add("A")
	return &A{Name: "a"}
}

// B depends on A.
type B struct {
	A *A
}

func NewB(log *Log, a *A) *B {
	log.Add("B")
	return &B{A: a}
}

// Subscriber is tagged for collection by a Dispatcher.
type Subscriber struct {
	Name string
}

func NewSubscriber(name string) *Subscriber {
	return &Subscriber{Name: name}
}

// Dispatcher collects subscribers through method calls.
type Dispatcher struct {
	Subscribers []*Subscriber
	IDs         []string
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

func (d *Dispatcher) AddSubscriber(s *Subscriber) {
	d.Subscribers = append(d.Subscribers, s)
}

func (d *Dispatcher) AddSubscriberService(id string) {
	d.IDs = append(d.IDs, id)
}

// Chain collects matchers in the order they are added.
type Chain struct {
	Names []string
}

func NewChain() *Chain {
	return &Chain{}
}

func (c *Chain) Add(name string, priority int) {
	c.Names = append(c.Names, name)
}

func (c *Chain) AddPartial(m *Subscriber) {
	c.Names = append(c.Names, m.Name)
}

// Counter counts constructions to check memoization.
type Counter struct {
	ID int64
}

var counter atomic.Int64

func NewCounter() *Counter {
	return &Counter{ID: counter.Add(1)}
}

// Closable records when it is closed.
type Closable struct {
	Name string
	Log  *Log
}

func NewClosable(log *Log, name string) *Closable {
	return &Closable{Name: name, Log: log}
}

func (c *Closable) Close(context.Context) error {
	c.Log.Add("close " + c.Name)
	return nil
}

// Aggregate takes a slice and variadic values.
type Aggregate struct {
	Subscribers []*Subscriber
	Ports       []int
}

func NewAggregate(subs []*Subscriber, ports ...int) *Aggregate {
	return &Aggregate{Subscribers: subs, Ports: ports}
}

// Request is the synthetic value used by scope tests.
type Request struct {
	Path string
}

// Handler depends on the synthetic request.
type Handler struct {
	Request *Request
	Counter *Counter
}

func NewHandler(r *Request, c *Counter) *Handler {
	return &Handler{Request: r, Counter: c}
}

// Factory builds subscribers through a factory method.
type Factory struct {
	Prefix string
}

func NewFactory(prefix string) *Factory {
	return &Factory{Prefix: prefix}
}

func (f *Factory) Get(name string) (*Subscriber, error) {
	return &Subscriber{Name: f.Prefix + name}, nil
}
