package engine

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/use-agent/harvest/models"
)

// genuineBody is large enough and HTML enough to pass every heuristic.
var genuineBody = []byte("<html><body>" + strings.Repeat("<p>solid product listing content</p>", 40) + "</body></html>")

func TestClassify(t *testing.T) {
	detector := NewBlockDetector(nil)

	tests := []struct {
		name    string
		page    models.RawPage
		verdict Verdict
	}{
		{
			name:    "genuine page",
			page:    models.RawPage{StatusCode: 200, FinalURL: "https://www.amazon.in/dp/B00TEST123", Body: genuineBody},
			verdict: VerdictOk,
		},
		{
			name:    "forbidden status",
			page:    models.RawPage{StatusCode: 403, FinalURL: "https://www.amazon.in/dp/B00TEST123", Body: genuineBody},
			verdict: VerdictBlocked,
		},
		{
			name:    "rate limited status",
			page:    models.RawPage{StatusCode: 429, FinalURL: "https://www.amazon.in/dp/B00TEST123", Body: genuineBody},
			verdict: VerdictBlocked,
		},
		{
			name:    "unavailable status",
			page:    models.RawPage{StatusCode: 503, FinalURL: "https://www.amazon.in/dp/B00TEST123", Body: genuineBody},
			verdict: VerdictBlocked,
		},
		{
			name:    "redirected to captcha",
			page:    models.RawPage{StatusCode: 200, FinalURL: "https://www.amazon.in/Captcha/validate", Body: genuineBody},
			verdict: VerdictBlocked,
		},
		{
			name:    "redirected to block page",
			page:    models.RawPage{StatusCode: 200, FinalURL: "https://example.com/blocked", Body: genuineBody},
			verdict: VerdictBlocked,
		},
		{
			name:    "empty body",
			page:    models.RawPage{StatusCode: 200, FinalURL: "https://example.com/p", Body: nil},
			verdict: VerdictMalformed,
		},
		{
			name:    "implausibly small body",
			page:    models.RawPage{StatusCode: 200, FinalURL: "https://example.com/p", Body: []byte("<html><body>tiny</body></html>")},
			verdict: VerdictBlocked,
		},
		{
			name: "challenge phrase in body",
			page: models.RawPage{
				StatusCode: 200,
				FinalURL:   "https://example.com/p",
				Body:       []byte("<html><body>" + strings.Repeat("<p>filler</p>", 50) + "<p>Enter the characters you see below</p></body></html>"),
			},
			verdict: VerdictBlocked,
		},
		{
			name: "robot check phrase",
			page: models.RawPage{
				StatusCode: 200,
				FinalURL:   "https://example.com/p",
				Body:       []byte("<html><body>" + strings.Repeat("<p>filler</p>", 50) + "<p>Robot Check</p></body></html>"),
			},
			verdict: VerdictBlocked,
		},
		{
			name:    "plain text payload",
			page:    models.RawPage{StatusCode: 200, FinalURL: "https://example.com/p", Body: []byte(strings.Repeat("plain words with no markup at all ", 30))},
			verdict: VerdictMalformed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict, reason := detector.Classify(&tt.page)
			assert.Equal(t, tt.verdict, verdict, "reason: %s", reason)
		})
	}
}

// Status codes outrank everything else: a 403 with a perfectly healthy
// body is still a block.
func TestClassify_CheckOrder(t *testing.T) {
	detector := NewBlockDetector(nil)

	verdict, reason := detector.Classify(&models.RawPage{
		StatusCode: 403,
		FinalURL:   "https://example.com/captcha",
		Body:       nil,
	})
	assert.Equal(t, VerdictBlocked, verdict)
	assert.Equal(t, "blocked status code", reason)

	// Challenge URL outranks the empty-body malformed check.
	verdict, reason = detector.Classify(&models.RawPage{
		StatusCode: 200,
		FinalURL:   "https://example.com/captcha",
		Body:       nil,
	})
	assert.Equal(t, VerdictBlocked, verdict)
	assert.Equal(t, "redirected to challenge URL", reason)
}

func TestClassify_Pure(t *testing.T) {
	detector := NewBlockDetector(nil)
	page := &models.RawPage{StatusCode: 200, FinalURL: "https://www.amazon.in/dp/B00TEST123", Body: genuineBody}

	first, firstReason := detector.Classify(page)
	for i := 0; i < 10; i++ {
		verdict, reason := detector.Classify(page)
		assert.Equal(t, first, verdict)
		assert.Equal(t, firstReason, reason)
	}
}

func TestClassify_CustomPhrases(t *testing.T) {
	detector := NewBlockDetector([]string{"zugriff verweigert"})
	body := []byte("<html><body>" + strings.Repeat("<p>inhalt</p>", 60) + "<p>Zugriff verweigert</p></body></html>")

	verdict, _ := detector.Classify(&models.RawPage{StatusCode: 200, FinalURL: "https://example.de/p", Body: body})
	assert.Equal(t, VerdictBlocked, verdict)

	// The default phrases are replaced, not appended.
	englishBody := []byte("<html><body>" + strings.Repeat("<p>content</p>", 60) + "<p>robot check</p></body></html>")
	verdict, _ = detector.Classify(&models.RawPage{StatusCode: 200, FinalURL: "https://example.de/p", Body: englishBody})
	assert.Equal(t, VerdictOk, verdict)
}
