package finish

import "sync"

// Variant selects the voice line played after the cue.
type Variant string

const (
	VariantA Variant = "A"
	VariantB Variant = "B"
)

// ParseVariant accepts "A" or "B" (case-insensitive).
func ParseVariant(value string) (Variant, bool) {
	switch value {
	case "A", "a":
		return VariantA, true
	case "B", "b":
		return VariantB, true
	default:
		return "", false
	}
}

// Clip returns the voice clip for the variant, falling back to A.
func (variant Variant) Clip() ClipID {
	if variant == VariantB {
		return ClipVoiceB
	}
	return ClipVoiceA
}

// Stage is the progress of one finish episode.
type Stage int

const (
	StageIdle Stage = iota
	StageCuePlaying
	StageVoicePlaying
	StageComplete
)

func (stage Stage) String() string {
	switch stage {
	case StageCuePlaying:
		return "cue_playing"
	case StageVoicePlaying:
		return "voice_playing"
	case StageComplete:
		return "complete"
	default:
		return "idle"
	}
}

// Outcome records how an episode resolved.
type Outcome string

const (
	OutcomePending   Outcome = ""
	OutcomeCompleted Outcome = "completed"
	OutcomeSilent    Outcome = "silent"
	OutcomeStopped   Outcome = "stopped"
)

// Episode is one play-through of the finish signal. It resolves exactly once;
// Done is closed at that moment.
type Episode struct {
	variant    Variant
	onComplete func()

	mu        sync.Mutex
	stage     Stage
	outcome   Outcome
	releasing bool
	done      chan struct{}
}

func newEpisode(variant Variant, onComplete func()) *Episode {
	return &Episode{
		variant:    variant,
		onComplete: onComplete,
		done:       make(chan struct{}),
	}
}

// Variant returns the voice variant this episode plays.
func (episode *Episode) Variant() Variant {
	return episode.variant
}

// Done is closed once the episode resolves.
func (episode *Episode) Done() <-chan struct{} {
	return episode.done
}

// Stage reports the current stage.
func (episode *Episode) Stage() Stage {
	episode.mu.Lock()
	defer episode.mu.Unlock()
	return episode.stage
}

// Outcome reports how the episode resolved, or OutcomePending.
func (episode *Episode) Outcome() Outcome {
	episode.mu.Lock()
	defer episode.mu.Unlock()
	return episode.outcome
}

// Resolved reports whether Done has been closed.
func (episode *Episode) Resolved() bool {
	select {
	case <-episode.done:
		return true
	default:
		return false
	}
}

func (episode *Episode) setStage(stage Stage) {
	episode.mu.Lock()
	episode.stage = stage
	episode.mu.Unlock()
}

// markReleasing flips the releasing flag once; later callers get false.
func (episode *Episode) markReleasing() bool {
	episode.mu.Lock()
	defer episode.mu.Unlock()
	if episode.releasing {
		return false
	}
	episode.releasing = true
	return true
}

// resolve settles the episode. Only the first call wins and returns true.
func (episode *Episode) resolve(outcome Outcome) bool {
	episode.mu.Lock()
	if episode.outcome != OutcomePending {
		episode.mu.Unlock()
		return false
	}
	episode.outcome = outcome
	episode.stage = StageComplete
	episode.mu.Unlock()

	close(episode.done)
	return true
}

func (episode *Episode) complete(outcome Outcome) {
	if episode.resolve(outcome) && episode.onComplete != nil {
		episode.onComplete()
	}
}
