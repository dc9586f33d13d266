package credits

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/santridigital/kreator-gateway/internal/gateway/credentials"
)

// Feature identifies one billable generation kind. Video features are
// parameterized by duration.
type Feature string

const (
	FeatureCreateImage     Feature = "create_image"
	FeatureEditImage       Feature = "edit_image"
	FeatureMergeImages     Feature = "merge_images"
	FeatureImageTo3D       Feature = "image_to_3d"
	FeatureTextToVideo5s   Feature = "text_to_video_5s"
	FeatureTextToVideo10s  Feature = "text_to_video_10s"
	FeatureImageToVideo5s  Feature = "image_to_video_5s"
	FeatureImageToVideo10s Feature = "image_to_video_10s"
)

// featureCosts is the fixed display cost per feature invocation.
var featureCosts = map[Feature]int{
	FeatureCreateImage:     6,
	FeatureEditImage:       40,
	FeatureMergeImages:     40,
	FeatureImageTo3D:       10,
	FeatureTextToVideo5s:   80,
	FeatureTextToVideo10s:  160,
	FeatureImageToVideo5s:  80,
	FeatureImageToVideo10s: 160,
}

// Cost returns the fixed cost of a feature, zero for unknown features.
func Cost(f Feature) int {
	return featureCosts[f]
}

// VideoFeature picks the duration-parameterized video feature. Only 5 and
// 10 second durations exist; anything other than 10 bills as 5 seconds.
func VideoFeature(imageToVideo bool, durationSeconds int) Feature {
	if imageToVideo {
		if durationSeconds == 10 {
			return FeatureImageToVideo10s
		}
		return FeatureImageToVideo5s
	}
	if durationSeconds == 10 {
		return FeatureTextToVideo10s
	}
	return FeatureTextToVideo5s
}

// Ledger applies feature costs to the display credit of a credential after
// a confirmed success. It is advisory bookkeeping: failures to persist are
// logged and never surfaced, and nothing is rolled back.
type Ledger struct {
	store *credentials.Store
}

// NewLedger creates a ledger over the credential store.
func NewLedger(store *credentials.Store) *Ledger {
	return &Ledger{store: store}
}

// Deduct applies the feature's fixed cost to the credential's display
// credit, floored at zero.
func (l *Ledger) Deduct(ctx context.Context, credentialID string, feature Feature) {
	cost := Cost(feature)
	if cost <= 0 {
		return
	}
	if err := l.store.DeductCredit(ctx, credentialID, cost); err != nil {
		log.Warn().
			Err(err).
			Str("credential_id", credentialID).
			Str("feature", string(feature)).
			Msg("credit deduction was not persisted")
	}
}
