package workflow

import (
	"context"
	"embed"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/afs"
	_ "github.com/viant/afs/embed"
	"github.com/viant/graphrun/extension"
	"github.com/viant/graphrun/service/job/builtin"
)

// testFS holds our test YAML files
//
//go:embed testdata/*
var testFS embed.FS

func TestService_Load(t *testing.T) {
	ctx := context.Background()
	registry, err := extension.NewRegistry(builtin.Jobs()...)
	require.NoError(t, err)
	service := New(WithFS(afs.New()), WithBaseURL("embed:///testdata"), WithFSOptions(&testFS), WithSpecLookup(registry.Spec))

	testCases := []struct {
		name        string
		url         string
		expectErr   bool
		expectName  string
		expectJobs  []string
		expectConns []string
	}{
		{
			name:        "linear chain named after file",
			url:         "linear",
			expectName:  "linear",
			expectJobs:  []string{"produce", "duplicate", "show"},
			expectConns: []string{"produce.output -> duplicate.input", "duplicate.output -> show.input"},
		},
		{
			name:        "interactive workflow",
			url:         "review.yaml",
			expectName:  "review",
			expectJobs:  []string{"scan", "approve"},
			expectConns: []string{"scan.output -> approve.input"},
		},
		{
			name:      "unknown job",
			url:       "broken.yaml",
			expectErr: true,
		},
		{
			name:      "missing document",
			url:       "missing.yaml",
			expectErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			wf, err := service.Load(ctx, tc.url)
			if tc.expectErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expectName, wf.Name)
			require.NotNil(t, wf.Source)
			var jobs []string
			for _, j := range wf.Jobs {
				jobs = append(jobs, j.ID)
			}
			assert.Equal(t, tc.expectJobs, jobs)
			var conns []string
			for _, c := range wf.Connections {
				conns = append(conns, c.String())
			}
			assert.Equal(t, tc.expectConns, conns)
		})
	}
}

func TestService_DecodeYAML(t *testing.T) {
	service := New()
	wf, err := service.DecodeYAML("", []byte(`
name: inline
jobs:
  - id: a
    job: nop
    settings:
      content: abc
`))
	require.NoError(t, err)
	assert.Equal(t, "inline", wf.Name)
	assert.Nil(t, wf.Source)
	assert.Equal(t, "abc", wf.Job("a").Settings["content"])

	_, err = service.DecodeYAML("", []byte("jobs: ["))
	assert.Error(t, err)
}
