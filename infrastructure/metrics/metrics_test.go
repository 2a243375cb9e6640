package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"social-publisher/domain/model"
)

func TestObservePlatform(t *testing.T) {
	posted := PublishOutcomes.WithLabelValues("LINKEDIN", "posted", "")
	failed := PublishOutcomes.WithLabelValues("LINKEDIN", "failed", "auth")
	beforePosted := testutil.ToFloat64(posted)
	beforeFailed := testutil.ToFloat64(failed)

	ObservePlatform(model.PlatformLinkedIn, nil, time.Now())
	ObservePlatform(model.PlatformLinkedIn, model.NewAuthError(model.PlatformLinkedIn, "expired", nil), time.Now())

	assert.Equal(t, beforePosted+1, testutil.ToFloat64(posted))
	assert.Equal(t, beforeFailed+1, testutil.ToFloat64(failed))
}

func TestObservePostAndJob(t *testing.T) {
	post := PostOutcomes.WithLabelValues("partial")
	job := JobsProcessed.WithLabelValues("sweep", "done")
	beforePost := testutil.ToFloat64(post)
	beforeJob := testutil.ToFloat64(job)

	ObservePost(model.PostStatusPartial)
	ObserveJob(model.JobKindSweep, "done")

	assert.Equal(t, beforePost+1, testutil.ToFloat64(post))
	assert.Equal(t, beforeJob+1, testutil.ToFloat64(job))
}
