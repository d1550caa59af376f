/*
 * Licensed to the Apache Software Foundation (ASF) under one or more
 * contributor license agreements.  See the NOTICE file distributed with
 * this work for additional information regarding copyright ownership.
 * The ASF licenses this file to You under the Apache License, Version 2.0
 * (the "License"); you may not use this file except in compliance with
 * the License.  You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package cores

import "sync"

type EventType int

const (
	EventLinkSaved     EventType = 1 // link inserted or updated
	EventLinkDeleted   EventType = 2 // link permanently deleted
	EventSettingsSaved EventType = 3 // settings changed
	EventCacheFlushed  EventType = 4 // resolution cache group flushed
)

func (t EventType) String() string {
	switch t {
	case EventLinkSaved:
		return "link_saved"
	case EventLinkDeleted:
		return "link_deleted"
	case EventSettingsSaved:
		return "settings_saved"
	case EventCacheFlushed:
		return "cache_flushed"
	default:
		return "unknown"
	}
}

// Event is a notification. Link is set for link events, Settings for
// EventSettingsSaved.
type Event struct {
	Type     EventType
	LinkID   int64
	Link     *Link
	Settings *Settings
}

type EventHandler func(Event)

// EventBus delivers events synchronously to handlers in subscription order.
type EventBus struct {
	mu       sync.RWMutex
	handlers []EventHandler
}

func NewEventBus() *EventBus {
	return &EventBus{}
}

func (b *EventBus) Subscribe(handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, handler)
}

func (b *EventBus) Publish(event Event) {
	if b == nil {
		return
	}

	b.mu.RLock()
	handlers := make([]EventHandler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	for _, h := range handlers {
		h(event)
	}
}
