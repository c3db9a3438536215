package sqlinline

import (
	"regexp"
	"strings"
	"testing"
)

var markerRe = regexp.MustCompile(`^--sql [0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// Every query carries a unique first-line marker; the runner refuses to
// execute statements without one.
func TestQueryMarkers(t *testing.T) {
	queries := map[string]string{
		"QUpsertUserByEmail":       QUpsertUserByEmail,
		"QSelectUserByID":          QSelectUserByID,
		"QSelectBalance":           QSelectBalance,
		"QDebitCredits":            QDebitCredits,
		"QCreditCredits":           QCreditCredits,
		"QListTransactions":        QListTransactions,
		"QInsertScene":             QInsertScene,
		"QSelectScene":             QSelectScene,
		"QSelectSessionScenes":     QSelectSessionScenes,
		"QUpdateSceneText":         QUpdateSceneText,
		"QSetImagePrompt":          QSetImagePrompt,
		"QSetImages":               QSetImages,
		"QSetSelectedImage":        QSetSelectedImage,
		"QSetVideoPrompts":         QSetVideoPrompts,
		"QDeleteScene":             QDeleteScene,
		"QCreateVideoJob":          QCreateVideoJob,
		"QSelectVideoJobByRequest": QSelectVideoJobByRequest,
		"QSelectVideoJobByScene":   QSelectVideoJobByScene,
		"QCompleteVideoJob":        QCompleteVideoJob,
		"QFailVideoJob":            QFailVideoJob,
		"QSelectPendingVideoJobs":  QSelectPendingVideoJobs,
	}

	seen := make(map[string]string)
	for name, q := range queries {
		first, _, ok := strings.Cut(q, "\n")
		if !ok {
			t.Errorf("%s: query has no body", name)
			continue
		}
		if !markerRe.MatchString(strings.TrimSpace(first)) {
			t.Errorf("%s: first line %q is not a valid marker", name, first)
			continue
		}
		if prev, dup := seen[first]; dup {
			t.Errorf("%s: marker reused by %s", name, prev)
		}
		seen[first] = name
	}
}
