package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubject(t *testing.T) {
	assert.Equal(t, "roomaccess.request.decided", Subject("roomaccess", TypeRequestDecided))
	assert.Equal(t, "access.recorded", Subject("", TypeAccessRecorded))
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = NopPublisher{}
	assert.NoError(t, p.Publish(context.Background(), Event{Type: TypeRequestExpired}))
	assert.NoError(t, p.Close())
}
