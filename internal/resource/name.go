package resource

import (
	"fmt"
	"math/rand"
)

var adjectives = []string{"quiet", "bold", "amber", "swift", "calm", "lucid", "brisk", "coral", "dusky", "vivid"}
var nouns = []string{"falcon", "harbor", "meadow", "cinder", "ridge", "lantern", "thicket", "delta", "summit", "ember"}

// RandomName returns a deterministic-enough-for-humans name, per spec
// §4.4.1 ("random_name(); not required to be unique").
func RandomName(rng *rand.Rand) string {
	return fmt.Sprintf("%s-%s-%d", adjectives[rng.Intn(len(adjectives))], nouns[rng.Intn(len(nouns))], rng.Intn(10000))
}
