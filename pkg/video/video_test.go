package video

import "testing"

func TestExtractID(t *testing.T) {
	testCases := []struct {
		url      string
		expected string
		ok       bool
	}{
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ", true},
		{"https://www.youtube.com/watch?feature=share&v=dQw4w9WgXcQ&t=10", "dQw4w9WgXcQ", true},
		{"https://youtu.be/dQw4w9WgXcQ?t=42", "dQw4w9WgXcQ", true},
		{"https://www.youtube.com/embed/dQw4w9WgXcQ", "dQw4w9WgXcQ", true},
		{"https://www.youtube.com/v/dQw4w9WgXcQ", "dQw4w9WgXcQ", true},
		{"https://example.com/video.mp4", "", false},
		{"pending", "", false},
		{"https://youtu.be/short", "", false},
	}

	for _, testCase := range testCases {
		id, ok := ExtractID(testCase.url)

		if id != testCase.expected || ok != testCase.ok {
			t.Errorf("ExtractID(%s): expected %q %t, got %q %t", testCase.url, testCase.expected, testCase.ok, id, ok)
		}
	}
}

func TestErrorMessage(t *testing.T) {
	if ErrorMessage(150) != ErrorMessage(101) {
		t.Error("101 and 150 should share a message")
	}

	if ErrorMessage(100) != "Video not found or removed" {
		t.Errorf("unexpected message: %s", ErrorMessage(100))
	}

	if ErrorMessage(7) != "Unknown error (code 7)" {
		t.Errorf("unexpected message: %s", ErrorMessage(7))
	}
}

func TestState(t *testing.T) {
	if !StatePlaying.Active() || !StateBuffering.Active() || StatePaused.Active() {
		t.Error("only playing and buffering are active")
	}

	if StateCued.String() != "CUED" {
		t.Error("unexpected state name")
	}
}
