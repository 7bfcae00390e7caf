// Package mcptools exposes the speech service to a coding assistant over
// the Model Context Protocol on stdio.
package mcptools

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/voxctl/voicemode/internal/speech"
)

const serverName = "voicemode"

type SpeakParams struct {
	Text string `json:"text" mcp:"The text to speak aloud to the user"`
}

type ListenParams struct {
	Prompt string `json:"prompt,omitempty" mcp:"Optional context shown in logs for what the assistant is listening for"`
}

type ConverseParams struct {
	Text string `json:"text" mcp:"The text to speak before listening for the user's reply"`
}

type SetVoiceParams struct {
	Voice string `json:"voice" mcp:"Voice file name to use for speech, e.g. 'Freya.wav'"`
}

type StatusParams struct{}

// NewServer builds the MCP server with the five voice tools registered.
func NewServer(svc *speech.Service, version string) *mcp.Server {
	s := mcp.NewServer(&mcp.Implementation{
		Name:    serverName,
		Title:   "Voice Mode",
		Version: version,
	}, nil)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "speak",
		Description: "Speak text aloud to the user through the local speakers. Use for narrating progress or asking questions.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, params SpeakParams) (*mcp.CallToolResult, any, error) {
		res, err := svc.Speak(ctx, params.Text)
		if err != nil {
			return errorResult(fmt.Sprintf("Speech failed: %v", err)), nil, nil
		}
		return textResult(speakSummary(res)), nil, nil
	})

	mcp.AddTool(s, &mcp.Tool{
		Name:        "listen",
		Description: "Listen on the microphone and return a transcript of what the user says. Recording stops after trailing silence.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, params ListenParams) (*mcp.CallToolResult, any, error) {
		res, err := svc.Listen(ctx)
		if err != nil {
			return errorResult(fmt.Sprintf("Listening failed: %v", err)), nil, nil
		}
		if res.Transcript == "" {
			if res.HeardSpeech {
				return textResult("Heard speech but could not transcribe it."), nil, nil
			}
			return textResult("Heard nothing."), nil, nil
		}
		return textResult(res.Transcript), nil, nil
	})

	mcp.AddTool(s, &mcp.Tool{
		Name:        "converse",
		Description: "Speak text aloud, then listen for the user's spoken reply. Returns the reply transcript.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, params ConverseParams) (*mcp.CallToolResult, any, error) {
		res, err := svc.Converse(ctx, params.Text)
		if err != nil {
			return errorResult(fmt.Sprintf("Conversation failed: %v", err)), nil, nil
		}
		var b strings.Builder
		b.WriteString(speakSummary(res.Speak))
		if res.Transcript != "" {
			b.WriteString("\nUser replied: ")
			b.WriteString(res.Transcript)
		} else if res.Speak.Spoken {
			b.WriteString("\nUser did not reply.")
		}
		return textResult(b.String()), nil, nil
	})

	mcp.AddTool(s, &mcp.Tool{
		Name:        "set_voice",
		Description: "Change the voice used for speech synthesis.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, params SetVoiceParams) (*mcp.CallToolResult, any, error) {
		if err := svc.SetVoice(ctx, params.Voice); err != nil {
			return errorResult(fmt.Sprintf("Could not set voice: %v", err)), nil, nil
		}
		return textResult(fmt.Sprintf("Voice set to %s.", strings.TrimSpace(params.Voice))), nil, nil
	})

	mcp.AddTool(s, &mcp.Tool{
		Name:        "voice_status",
		Description: "Report the current voice mode state: engine health, streaming availability, selected voice, and pause state.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, _ StatusParams) (*mcp.CallToolResult, any, error) {
		return textResult(statusSummary(svc.Status(ctx))), nil, nil
	})

	return s
}

// Run serves the tools over stdio until the context ends.
func Run(ctx context.Context, svc *speech.Service, version string) error {
	return NewServer(svc, version).Run(ctx, &mcp.StdioTransport{})
}

func speakSummary(res speech.SpeakResult) string {
	switch res.Status {
	case speech.StatusSpoken:
		if res.Path == speech.PathStreaming {
			return "Spoke the text (streamed)."
		}
		return "Spoke the text (buffered playback)."
	case speech.StatusRecovery:
		var b strings.Builder
		b.WriteString("Spoke the text (buffered playback) after a streaming failure.")
		if res.UserResponseUnclear {
			b.WriteString(" The user's audio confirmation was unclear; the text may not have been heard.")
		}
		if res.Instruction != "" {
			b.WriteString(" ")
			b.WriteString(res.Instruction)
		}
		return b.String()
	default:
		msg := "Did not speak"
		if res.Detail != "" {
			msg += ": " + res.Detail
		}
		msg += "."
		instruction := res.Instruction
		if instruction == "" {
			instruction = "Present the text in the chat instead."
		}
		return msg + " " + instruction
	}
}

func statusSummary(st speech.StatusResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Voice mode: %s\n", enabledWord(!st.Disabled))
	fmt.Fprintf(&b, "Streaming playback: %s\n", st.StreamingState)
	fmt.Fprintf(&b, "Voice: %s\n", st.Voice)
	fmt.Fprintf(&b, "TTS engine (%s): %s\n", st.AllTalkURL, readyWord(st.TTSReady))
	fmt.Fprintf(&b, "STT engine (%s): %s\n", st.WhisperURL, readyWord(st.STTReady))
	fmt.Fprintf(&b, "Playback paused: %v", st.TTSPaused)
	return b.String()
}

func enabledWord(on bool) string {
	if on {
		return "enabled"
	}
	return "disabled"
}

func readyWord(ok bool) string {
	if ok {
		return "ready"
	}
	return "not ready"
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func errorResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: true,
	}
}
