package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPublishOnNilPublisherIsSafe(t *testing.T) {
	var p *Publisher

	assert.NotPanics(t, func() {
		p.Publish(Event{Type: EventBuildStarted, BuildID: "abc"})
		p.Close()
	})
}

func TestPublishWithoutConnectionIsSafe(t *testing.T) {
	p := &Publisher{}

	assert.NotPanics(t, func() {
		p.Publish(Event{Type: EventBuildFailed, BuildID: "abc", Reason: "sync failed"})
		p.Close()
	})
}
