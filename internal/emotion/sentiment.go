package emotion

// Context is the conversational setting used when mapping sentiment to a
// state. The mapping is a fixed threshold table, not a model: identical
// inputs always resolve to the same state.
type Context string

const (
	ContextInterview Context = "interview"
	ContextFeedback  Context = "feedback"
	ContextQuestion  Context = "question"
)

// FromSentiment maps a sentiment score in [-1,1] plus the conversational
// context to one of the built-in states.
func FromSentiment(score float32, ctx Context) State {
	if score > 1 {
		score = 1
	}
	if score < -1 {
		score = -1
	}

	switch ctx {
	case ContextInterview:
		switch {
		case score >= 0.6:
			return Happy
		case score >= -0.2:
			return Professional
		case score >= -0.6:
			return Thoughtful
		default:
			return Sad
		}

	case ContextFeedback:
		switch {
		case score >= 0.5:
			return Happy
		case score >= -0.1:
			return Neutral
		case score >= -0.5:
			return Confused
		default:
			return Sad
		}

	case ContextQuestion:
		switch {
		case score >= 0.5:
			return Surprised
		case score >= -0.4:
			return Thoughtful
		default:
			return Confused
		}

	default:
		switch {
		case score >= 0.5:
			return Happy
		case score <= -0.5:
			return Sad
		default:
			return Neutral
		}
	}
}
