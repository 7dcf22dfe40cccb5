// Copyright 2023 The Cockroach Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

package sink

import (
	"context"
	"encoding/json"

	log "github.com/sirupsen/logrus"

	"github.com/cockroachdb/wf-reactor/internal/rule/executor"
	"github.com/cockroachdb/wf-reactor/internal/util/stopper"
)

// Pump is the single Alert-dispatcher task spec §5 names: it drains
// the bounded alert channel every rule task shares and hands each
// alert to the Dispatcher, keyed by the rule's yield target. Per the
// shutdown ordering in spec §5, a Pump stops only after every rule
// task producing into its channel has already exited, and it stops
// before the dispatcher's sinks are told to StopAll.
type Pump struct {
	Dispatcher *Dispatcher
	AlertCh    <-chan executor.Alert
}

// NewPump constructs a Pump reading from alertCh.
func NewPump(dispatcher *Dispatcher, alertCh <-chan executor.Alert) *Pump {
	return &Pump{Dispatcher: dispatcher, AlertCh: alertCh}
}

// Run drains alerts until the channel is closed, or until ctx stops, in
// which case it dispatches every alert already buffered in the channel
// and returns without waiting for the close. Callers close AlertCh's send side (every
// rule task has exited) before this returns, so Run's exit marks the
// point it is safe to call Dispatcher.StopAll.
func (p *Pump) Run(ctx *stopper.Context) error {
	for {
		select {
		case a, ok := <-p.AlertCh:
			if !ok {
				return nil
			}
			p.dispatch(ctx, a)
		case <-ctx.Stopping():
			p.drainRemaining(ctx)
			return nil
		}
	}
}

func (p *Pump) dispatch(ctx context.Context, a executor.Alert) {
	data, err := json.Marshal(a)
	if err != nil {
		log.WithError(err).WithField("rule", a.RuleName).Warn("could not marshal alert; dropping")
		return
	}
	p.Dispatcher.Dispatch(ctx, a.YieldTarget, string(data))
}

// drainRemaining flushes any alerts already buffered in the channel
// once Stopping fires, so in-flight alerts from rule tasks that raced
// the stop signal aren't silently lost.
func (p *Pump) drainRemaining(ctx context.Context) {
	for {
		select {
		case a, ok := <-p.AlertCh:
			if !ok {
				return
			}
			p.dispatch(ctx, a)
		default:
			return
		}
	}
}
