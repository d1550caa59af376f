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

package redisx

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/vogo/vlinkmanager/cores"
)

// Redis pub/sub channel announcing settings changes
const settingsChannel = "vlinkmanager:settings:changed"

// SettingsNotifier tells the other instances sharing a settings record to drop
// their cached copy as soon as one of them saves a change.
type SettingsNotifier struct {
	redis      *redis.Client
	channel    string
	instanceID string
}

func NewSettingsNotifier(redisClient *redis.Client, keyPrefix string) *SettingsNotifier {
	return &SettingsNotifier{
		redis:      redisClient,
		channel:    keyPrefix + settingsChannel,
		instanceID: uuid.NewString(),
	}
}

// Publish announces a local settings change.
func (n *SettingsNotifier) Publish(ctx context.Context) error {
	if err := n.redis.Publish(ctx, n.channel, n.instanceID).Err(); err != nil {
		return cores.StorageError(err)
	}
	return nil
}

// Listen calls onChange for every change announced by another instance.
// The subscription is confirmed before Listen returns, stop ends it.
func (n *SettingsNotifier) Listen(ctx context.Context, onChange func()) (stop func(), err error) {
	pubsub := n.redis.Subscribe(ctx, n.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, cores.StorageError(err)
	}

	messages := pubsub.Channel()
	done := make(chan struct{})

	go func() {
		defer close(done)
		for msg := range messages {
			if msg.Payload == n.instanceID {
				continue
			}
			onChange()
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			_ = pubsub.Close()
			<-done
		})
	}, nil
}
