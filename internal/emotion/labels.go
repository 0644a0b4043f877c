// Package emotion holds the fixed label set the classifier was trained against,
// the argmax resolver over its output and the emotion to brightness policy.
package emotion

import (
	"errors"
	"fmt"
	"strings"
)

// Label is one facial expression class.
type Label string

const (
	Angry    Label = "Angry"
	Disgust  Label = "Disgust"
	Fear     Label = "Fear"
	Happy    Label = "Happy"
	Sad      Label = "Sad"
	Surprise Label = "Surprise"
	Neutral  Label = "Neutral"
)

// LabelSetVersion identifies the ordering of Labels. Bump it whenever the
// order changes so artifacts exported against an older order are rejected.
const LabelSetVersion = "fer2013-v1"

// Labels is the positional class order of the model output. Index i of the
// distribution belongs to Labels[i].
var Labels = [...]Label{Angry, Disgust, Fear, Happy, Sad, Surprise, Neutral}

var (
	ErrDistribution = errors.New("invalid class distribution")
	ErrLabelSet     = errors.New("label set mismatch")
)

func (l Label) String() string {
	return string(l)
}

// Index returns the position of l in Labels, or -1.
func (l Label) Index() int {
	for i, candidate := range Labels {
		if candidate == l {
			return i
		}
	}
	return -1
}

// ParseLabel matches name against the label set, ignoring case.
func ParseLabel(name string) (Label, error) {
	for _, l := range Labels {
		if strings.EqualFold(string(l), strings.TrimSpace(name)) {
			return l, nil
		}
	}
	return "", fmt.Errorf("unknown emotion label %q", name)
}

// Names returns the label names in positional order.
func Names() []string {
	names := make([]string, len(Labels))
	for i, l := range Labels {
		names[i] = string(l)
	}
	return names
}

// ValidateClasses checks the class list shipped with a model artifact against
// Labels. An empty version skips the version comparison.
func ValidateClasses(classes []string, version string) error {
	if version != "" && version != LabelSetVersion {
		return fmt.Errorf("%w: artifact label set %q, expected %q", ErrLabelSet, version, LabelSetVersion)
	}
	if len(classes) != len(Labels) {
		return fmt.Errorf("%w: artifact has %d classes, expected %d", ErrLabelSet, len(classes), len(Labels))
	}
	for i, name := range classes {
		if !strings.EqualFold(name, string(Labels[i])) {
			return fmt.Errorf("%w: class %d is %q, expected %q", ErrLabelSet, i, name, Labels[i])
		}
	}
	return nil
}
