/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package publish

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/carverauto/tagbind/pkg/binding"
	"github.com/carverauto/tagbind/pkg/expr"
	"github.com/carverauto/tagbind/pkg/logger"
	"github.com/carverauto/tagbind/pkg/models"
)

func liveSnapshot(id string, out float64) binding.Snapshot {
	return binding.Snapshot{
		ID: id,
		Binding: models.Binding{
			FieldBinding: models.FieldBinding{DeviceClass: "modelX", DeviceID: "D1", Field: "ai2"},
		},
		State:        binding.StateLive,
		LiveValue:    out,
		OutputValue:  expr.Number(out),
		OnlineStatus: true,
		UpdatedAt:    time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestPublishCloudEvent(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	var payload []byte

	js := NewMockJetStreamPublisher(ctrl)
	js.EXPECT().Publish(gomock.Any(), "tagbind.bindings.w1", gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, data []byte, _ ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
			payload = data
			return &jetstream.PubAck{Stream: "TAGBIND_SNAPSHOTS", Sequence: 7}, nil
		})

	p := NewSnapshotPublisher(js, "tagbind/test", "", logger.NewTestLogger())

	require.NoError(t, p.Publish(context.Background(), liveSnapshot("w1", 42.5)))

	var event map[string]interface{}
	require.NoError(t, json.Unmarshal(payload, &event))

	assert.Equal(t, "1.0", event["specversion"])
	assert.Equal(t, EventType, event["type"])
	assert.Equal(t, "tagbind/test", event["source"])
	assert.Equal(t, "tagbind.bindings.w1", event["subject"])
	assert.Equal(t, "2024-05-01T10:00:00Z", event["time"])
	assert.NotEmpty(t, event["id"])

	data := event["data"].(map[string]interface{})
	assert.Equal(t, "w1", data["id"])
	assert.Equal(t, "live", data["state"])
	assert.Equal(t, 42.5, data["output_value"])
	assert.Equal(t, "42.5", data["display"])
}

func TestPublishError(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	errRejected := errors.New("stream rejected message")

	js := NewMockJetStreamPublisher(ctrl)
	js.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, errRejected)

	p := NewSnapshotPublisher(js, "tagbind", "custom.prefix.", logger.NewTestLogger())

	err := p.Publish(context.Background(), liveSnapshot("w1", 1))
	require.ErrorIs(t, err, errRejected)
	assert.Equal(t, "custom.prefix.w1", p.Subject("w1"))
}

func TestSubjectToken(t *testing.T) {
	assert.Equal(t, "w1", subjectToken("w1"))
	assert.Equal(t, "a_b_c_d", subjectToken("a.b*c>d"))
	assert.Equal(t, "two_words", subjectToken(" two words "))
	assert.Equal(t, "_", subjectToken(""))
}

func TestPublisherSkipsUnchangedSnapshots(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	var (
		mu       sync.Mutex
		subjects []string
	)

	js := NewMockJetStreamPublisher(ctrl)
	js.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, subject string, _ []byte, _ ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
			mu.Lock()
			defer mu.Unlock()

			subjects = append(subjects, subject)

			return &jetstream.PubAck{}, nil
		}).Times(3)

	p := NewSnapshotPublisher(js, "tagbind", "", logger.NewTestLogger())

	errCh := make(chan error, 1)

	go func() { errCh <- p.Start(context.Background()) }()

	first := liveSnapshot("w1", 1)
	p.Handle(first)

	again := first
	again.UpdatedAt = first.UpdatedAt.Add(time.Second)
	p.Handle(again)

	p.Handle(liveSnapshot("w1", 2))
	p.Handle(liveSnapshot("w2", 2))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()

		return len(subjects) == 3
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, p.Stop(context.Background()))
	require.NoError(t, <-errCh)

	assert.Equal(t, []string{"tagbind.bindings.w1", "tagbind.bindings.w1", "tagbind.bindings.w2"}, subjects)

	// after stop nothing is queued
	p.Handle(liveSnapshot("w3", 1))
}

func TestPublisherFlushesOnStop(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	js := NewMockJetStreamPublisher(ctrl)
	js.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(&jetstream.PubAck{}, nil).Times(2)

	p := NewSnapshotPublisher(js, "tagbind", "", logger.NewTestLogger())

	p.Handle(liveSnapshot("w1", 1))
	p.Handle(liveSnapshot("w2", 1))

	require.NoError(t, p.Stop(context.Background()))

	// Start after Stop only drains what was queued
	require.NoError(t, p.Start(context.Background()))
	require.ErrorIs(t, p.Start(context.Background()), errAlreadyStarted)
}

func TestPublisherRetriesAfterFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	js := NewMockJetStreamPublisher(ctrl)
	gomock.InOrder(
		js.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, errors.New("stream rejected message")),
		js.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(&jetstream.PubAck{}, nil),
	)

	p := NewSnapshotPublisher(js, "tagbind", "", logger.NewTestLogger())

	// a failed publish is not remembered, so the same snapshot goes out again
	p.publishIfChanged(context.Background(), liveSnapshot("w1", 1))
	p.publishIfChanged(context.Background(), liveSnapshot("w1", 1))
}

func TestPublishRetriesTransientErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	var ids []string

	record := func(_ context.Context, _ string, data []byte, _ ...jetstream.PublishOpt) {
		var event models.CloudEvent
		require.NoError(t, json.Unmarshal(data, &event))
		ids = append(ids, event.ID)
	}

	js := NewMockJetStreamPublisher(ctrl)
	gomock.InOrder(
		js.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			Do(record).Return(nil, nats.ErrTimeout),
		js.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			Do(record).Return(nil, nats.ErrNoResponders),
		js.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			Do(record).Return(&jetstream.PubAck{Sequence: 3}, nil),
	)

	p := NewSnapshotPublisher(js, "tagbind", "", logger.NewTestLogger())

	require.NoError(t, p.Publish(context.Background(), liveSnapshot("w1", 1)))
	require.Len(t, ids, 3)
	assert.Equal(t, ids[0], ids[1])
	assert.Equal(t, ids[0], ids[2])
}

func TestPublishStopsRetryingWhenCancelled(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx, cancel := context.WithCancel(context.Background())

	js := NewMockJetStreamPublisher(ctrl)
	js.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, string, []byte, ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
			cancel()
			return nil, nats.ErrTimeout
		})

	p := NewSnapshotPublisher(js, "tagbind", "", logger.NewTestLogger())

	err := p.Publish(ctx, liveSnapshot("w1", 1))
	require.ErrorIs(t, err, nats.ErrTimeout)
}

func TestConnectRequiresURL(t *testing.T) {
	_, _, err := Connect(context.Background(), &Config{}, logger.NewTestLogger())
	require.ErrorIs(t, err, errNATSURLRequired)

	_, _, err = Connect(context.Background(), nil, logger.NewTestLogger())
	require.ErrorIs(t, err, errNATSURLRequired)
}

func TestConfigDefaults(t *testing.T) {
	c := (&Config{URL: "nats://localhost:4222"}).withDefaults()

	assert.Equal(t, defaultStream, c.Stream)
	assert.Equal(t, DefaultSubjectPrefix, c.SubjectPrefix)
	assert.Equal(t, defaultSource, c.Source)
	assert.NotEmpty(t, connectOptions(&c, logger.NewTestLogger()))
}
