package pubsub

import "testing"

func TestTopicResourceName(t *testing.T) {
	c := &Client{projectID: "farmgate-dev"}
	cases := map[string]string{
		"checkout-outcomes":                       "projects/farmgate-dev/topics/checkout-outcomes",
		" checkout-outcomes ":                     "projects/farmgate-dev/topics/checkout-outcomes",
		"projects/other/topics/checkout-outcomes": "projects/other/topics/checkout-outcomes",
		"":                                        "",
	}
	for in, want := range cases {
		if got := c.topicResourceName(in); got != want {
			t.Fatalf("topicResourceName(%q) = %q, want %q", in, got, want)
		}
	}

	var nilClient *Client
	if got := nilClient.topicResourceName("x"); got != "" {
		t.Fatalf("nil client should yield empty name, got %q", got)
	}
	if nilClient.Publisher("x") != nil {
		t.Fatal("nil client should not hand out publishers")
	}
	if err := nilClient.Close(); err != nil {
		t.Fatalf("nil close should be a no-op, got %v", err)
	}
}
