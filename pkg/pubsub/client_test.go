package pubsub

import (
	"context"
	"errors"
	"testing"

	"github.com/angelmondragon/packfinderz-pos/pkg/config"
)

func TestNewClientRequiresProject(t *testing.T) {
	_, err := NewClient(context.Background(), config.GCPConfig{}, config.PubSubConfig{ReceiptTopic: "jobs"}, nil)
	if !errors.Is(err, errProjectIDRequired) {
		t.Fatalf("expected project id error, got %v", err)
	}
}

func TestTopicResourceName(t *testing.T) {
	cases := map[string]struct {
		project string
		name    string
		want    string
	}{
		"short id":      {project: "pos", name: "receipts", want: "projects/pos/topics/receipts"},
		"full name":     {project: "other", name: "projects/pos/topics/receipts", want: "projects/pos/topics/receipts"},
		"blank name":    {project: "pos", name: "  ", want: ""},
		"blank project": {project: "", name: "receipts", want: ""},
	}
	for name, tc := range cases {
		if got := topicResourceName(tc.project, tc.name); got != tc.want {
			t.Fatalf("%s: expected %q got %q", name, tc.want, got)
		}
	}
}

func TestTopicNames(t *testing.T) {
	if names := topicNames(config.PubSubConfig{}); len(names) != 0 {
		t.Fatalf("expected no topics, got %v", names)
	}
	names := topicNames(config.PubSubConfig{ReceiptTopic: " receipts "})
	if len(names) != 1 || names[0] != "receipts" {
		t.Fatalf("unexpected topics %v", names)
	}
}

func TestNilClientIsSafe(t *testing.T) {
	var c *Client
	if c.Publisher("x") != nil || c.ReceiptPublisher() != nil {
		t.Fatalf("nil client should return nil publishers")
	}
	if err := c.Ping(context.Background()); !errors.Is(err, errNotInitialized) {
		t.Fatalf("expected not initialized, got %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
