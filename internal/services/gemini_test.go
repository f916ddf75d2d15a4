package services

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"google.golang.org/api/googleapi"
)

func TestClassifyGeminiError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr error
	}{
		{
			name:    "api 429",
			err:     &googleapi.Error{Code: http.StatusTooManyRequests, Message: "quota"},
			wantErr: ErrRateLimited,
		},
		{
			name:    "wrapped api 429",
			err:     fmt.Errorf("send: %w", &googleapi.Error{Code: http.StatusTooManyRequests}),
			wantErr: ErrRateLimited,
		},
		{
			name:    "resource exhausted text",
			err:     errors.New("rpc error: code = ResourceExhausted desc = RESOURCE_EXHAUSTED"),
			wantErr: ErrRateLimited,
		},
		{
			name:    "api 503",
			err:     &googleapi.Error{Code: http.StatusServiceUnavailable},
			wantErr: ErrUnavailable,
		},
		{
			name:    "dial failure",
			err:     fmt.Errorf("post: %w", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}),
			wantErr: ErrUnavailable,
		},
		{
			name: "invalid argument",
			err:  &googleapi.Error{Code: http.StatusBadRequest, Message: "bad model"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyGeminiError(tt.err)
			assert.ErrorIs(t, got, tt.err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, got, tt.wantErr)
				return
			}
			assert.NotErrorIs(t, got, ErrRateLimited)
			assert.NotErrorIs(t, got, ErrUnavailable)
		})
	}
}

func TestResponseText(t *testing.T) {
	assert.Equal(t, "", responseText(nil))
	assert.Equal(t, "", responseText(&genai.GenerateContentResponse{}))

	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{
				genai.Text("The door "),
				genai.Text("creaks open."),
			}},
		}},
	}
	assert.Equal(t, "The door creaks open.", responseText(resp))
}
