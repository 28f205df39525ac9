// Copyright 2016 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

// Package event implements the chain.emitter collaborator: a type-safe,
// reflect-based multi-producer, multi-consumer pub/sub bus. The block-input
// driver subscribes to it for unknownParent, incompleteBlockInput,
// unknownBlockRoot and the gossip-path events it reacts to.
package event

import (
	"errors"
	"reflect"
	"sync"
)

var errBadChannel = errors.New("event: Subscribe argument does not have sendable channel type")

// Feed implements one-to-many subscriptions where the carrier of events is a
// channel. Values sent to a Feed are delivered to all subscribed channels
// simultaneously.
//
// The zero value is ready to use.
//
// Feed can only be used with a single type. The type is determined by the
// first Send or Subscribe operation. Subsequent calls to these methods panic
// if the type does not match.
type Feed struct {
	once sync.Once
	sendLock chan struct{}
	removeSub chan interface{}

	mu sync.Mutex
	typemu sync.Mutex
	etype reflect.Type
	closed bool
	sendCases caseList
}

// This is the index of the first actual subscription channel in sendCases.
// sendCases[0] is a SelectRecv case for the removeSub channel.
const firstSubSendCase = 1

type feedTypeError struct {
	got, want reflect.Type
	op string
}

func (e feedTypeError) Error() string {
	return "event: wrong type in " + e.op + " got " + e.got.String() + ", want " + e.want.String()
}

func (f *Feed) init() {
	f.sendLock = make(chan struct{}, 1)
	f.sendLock <- struct{}{}
	f.removeSub = make(chan interface{})
	f.sendCases = caseList{{Chan: reflect.ValueOf(f.removeSub), Dir: reflect.SelectRecv}}
}

// Subscribe adds a channel to the feed. Future sends will be delivered on the
// channel until the subscription is canceled. All channels added must have
// the same element type as the Feed.
//
// The channel should have ample buffer space to avoid blocking other
// subscribers. Slow subscribers are not dropped.
func (f *Feed) Subscribe(channel interface{}) Subscription {
	f.once.Do(f.init)

	chanval := reflect.ValueOf(channel)
	chantyp := chanval.Type()
	if chantyp.Kind() != reflect.Chan || chantyp.ChanDir()&reflect.SendDir == 0 {
		panic(errBadChannel)
	}
	sub := &feedSub{feed: f, channel: chanval, err: make(chan error, 1)}

	f.typemu.Lock()
	defer f.typemu.Unlock()
	if !f.registerNewType(chantyp.Elem()) {
		panic(feedTypeError{op: "Subscribe", got: chantyp, want: reflect.ChanOf(reflect.SendDir, f.etype)})
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	cas := reflect.SelectCase{Dir: reflect.SelectSend, Chan: chanval}
	f.sendCases = append(f.sendCases, cas)
	return sub
}

func (f *Feed) registerNewType(elem reflect.Type) bool {
	if f.etype == nil {
		f.etype = elem
		return true
	}
	return f.etype == elem
}

func (f *Feed) remove(sub *feedSub) {
	ch := sub.channel.Interface()
	f.mu.Lock()
	index := f.sendCases.find(ch)
	f.mu.Unlock()
	if index == -1 {
		return
	}
	select {
	case f.removeSub <- ch:
	case <-f.sendLock:
		f.mu.Lock()
		f.sendCases = f.sendCases.delete(f.sendCases.find(ch))
		f.mu.Unlock()
		f.sendLock <- struct{}{}
	}
}

// Send delivers to all subscribed channels simultaneously. It returns the
// number of subscribers that the value was sent to.
func (f *Feed) Send(value interface{}) (nsent int) {
	rvalue := reflect.ValueOf(value)

	f.once.Do(f.init)
	<-f.sendLock

	f.typemu.Lock()
	if !f.registerNewType(rvalue.Type()) {
		f.typemu.Unlock()
		f.sendLock <- struct{}{}
		panic(feedTypeError{op: "Send", got: rvalue.Type(), want: f.etype})
	}
	f.typemu.Unlock()

	f.mu.Lock()
	cases := append(caseList{}, f.sendCases...)
	f.mu.Unlock()

	for i := firstSubSendCase; i < len(cases); i++ {
		cases[i].Send = rvalue
	}

	for {
		for i := firstSubSendCase; i < len(cases); i++ {
			if cases[i].Chan.TrySend(rvalue) {
				nsent++
				cases = cases.deactivate(i)
				i--
			}
		}
		if len(cases) == firstSubSendCase {
			break
		}
		chosen, recv, _ := reflect.Select(cases)
		if chosen == 0 {
			index := f.sendCases.find(recv.Interface())
			f.mu.Lock()
			f.sendCases = f.sendCases.delete(index)
			f.mu.Unlock()
			if index >= 0 && index < len(cases) {
				cases = cases.delete(index)
			}
			continue
		}
		nsent++
		cases = cases.deactivate(chosen)
	}

	for i := range cases[firstSubSendCase:] {
		cases[i+firstSubSendCase].Send = reflect.Value{}
	}
	f.sendLock <- struct{}{}
	return nsent
}

type feedSub struct {
	feed *Feed
	channel reflect.Value
	errOnce sync.Once
	err chan error
}

func (sub *feedSub) Unsubscribe() {
	sub.errOnce.Do(func() {
		sub.feed.remove(sub)
		close(sub.err)
	})
}

func (sub *feedSub) Err() <-chan error {
	return sub.err
}

type caseList []reflect.SelectCase

// find returns the index of a case containing the given channel.
func (cs caseList) find(channel interface{}) int {
	for i, cas := range cs {
		if cas.Chan.Interface() == channel {
			return i
		}
	}
	return -1
}

// delete removes the given case from cs.
func (cs caseList) delete(index int) caseList {
	return append(cs[:index], cs[index+1:]...)
}

// deactivate moves the case at index into the non-send portion of the case
// list so that TrySend/Select stop considering it this round.
func (cs caseList) deactivate(index int) caseList {
	last := len(cs) - 1
	cs[index], cs[last] = cs[last], cs[index]
	return cs[:last]
}
