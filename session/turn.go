package session

// Turn groups a user prompt with all subsequent assistant messages,
// representing one request-response cycle in the conversation. The Archival
// Renderer (spec §4.2) walks turns, not the raw flat message list, so tool
// loops render as a single coherent exchange.
type Turn struct {
	UserMessage       *Message
	AssistantMessages []Message
}

// GroupTurns splits a flat message list into turns. A new turn starts at
// each user message that contains human-authored content. User messages
// that contain only tool_result blocks are folded into the current turn, as
// part of the agentic tool loop rather than a new human turn.
func GroupTurns(messages []Message) []Turn {
	var turns []Turn
	var current *Turn

	for i := range messages {
		msg := &messages[i]
		if msg.Role == RoleUser {
			if isToolResultOnly(msg) {
				if current == nil {
					current = &Turn{}
				}
				current.AssistantMessages = append(current.AssistantMessages, *msg)
			} else {
				if current != nil {
					turns = append(turns, *current)
				}
				current = &Turn{UserMessage: msg}
			}
		} else {
			if current == nil {
				current = &Turn{}
			}
			current.AssistantMessages = append(current.AssistantMessages, *msg)
		}
	}
	if current != nil {
		turns = append(turns, *current)
	}
	return turns
}

func isToolResultOnly(msg *Message) bool {
	if len(msg.Content) == 0 {
		return false
	}
	for _, b := range msg.Content {
		if b.Type != BlockToolResult {
			return false
		}
	}
	return true
}

// SplitContent classifies the turn's assistant content blocks into steps
// (intermediate agentic work) and response (the trailing run of text after
// the last tool/thinking block).
func (t Turn) SplitContent() (steps []ContentBlock, response []ContentBlock) {
	var allBlocks []ContentBlock
	for _, msg := range t.AssistantMessages {
		allBlocks = append(allBlocks, msg.Content...)
	}
	if len(allBlocks) == 0 {
		return nil, nil
	}

	lastNonText := -1
	for i, b := range allBlocks {
		if b.Type != BlockText {
			lastNonText = i
		}
	}
	if lastNonText == -1 {
		return nil, allBlocks
	}
	return allBlocks[:lastNonText+1], allBlocks[lastNonText+1:]
}

// StepCount returns the number of tool_use blocks across all assistant
// messages in this turn.
func (t Turn) StepCount() int {
	n := 0
	for _, msg := range t.AssistantMessages {
		for _, b := range msg.Content {
			if b.Type == BlockToolUse {
				n++
			}
		}
	}
	return n
}
