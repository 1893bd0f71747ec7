// Voicelink CLI - interactive chat session against a voice-assistant backend.
//
// Usage:
//
//	VOICELINK_URL=ws://host:8000/ws VOICELINK_DEVICE_ID=... VOICELINK_TOKEN=... go run ./cmd/voicelink
//
// Type a line to send it as a chat message. Commands:
//
//	/rec   toggle microphone recording
//	/quit  disconnect and exit
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/vocality/voicelink/internal/config"
	"github.com/vocality/voicelink/internal/log"
	"github.com/vocality/voicelink/pkg/chat"
)

func main() {
	godotenv.Load()
	log.Init(os.Getenv("LOG_LEVEL"))

	device, err := config.LoadDevice()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}

	session := chat.NewSession(chat.Config{
		ServerURL:  config.ServerURL(""),
		DeviceID:   device.ID,
		DeviceName: device.Name,
		DeviceMAC:  device.MAC,
		ClientID:   device.ClientID,
		Token:      device.Token,
		Logger:     log.L(),
	})
	defer session.Disconnect()

	unsubscribe := session.Subscribe(printEvent)
	defer unsubscribe()

	fmt.Println("🎙  Voicelink")
	fmt.Printf("Connecting to %s ...\n", config.ServerURL(""))

	if err := session.Connect(); err != nil {
		fmt.Fprintln(os.Stderr, "Connect failed:", err)
		os.Exit(1)
	}

	fmt.Println("Connected. Type to chat, /rec to record, /quit to exit.")

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit":
			return
		case "/rec":
			toggleRecording(session)
		default:
			if err := session.SendMessage(line); err != nil {
				fmt.Println("  ✗", err)
			}
		}
	}
}

func toggleRecording(session *chat.Session) {
	if session.RecordingState() == chat.RecordingActive {
		session.StopRecording()
		fmt.Println("⏹  recording stopped")
		return
	}

	if err := session.StartRecording(); err != nil {
		fmt.Println("  ✗", err)
		return
	}
	fmt.Println("⏺  recording... /rec to stop")

	// Crude level meter while recording.
	go func() {
		for session.RecordingState() == chat.RecordingActive {
			sample := session.FrequencySample()
			fmt.Printf("\r%s", meter(sample.Bands))
			time.Sleep(100 * time.Millisecond)
		}
		fmt.Print("\r" + strings.Repeat(" ", 40) + "\r")
	}()
}

func meter(bands []float32) string {
	var sb strings.Builder
	for _, b := range bands {
		switch {
		case b > 0.5:
			sb.WriteByte('#')
		case b > 0.1:
			sb.WriteByte('+')
		case b > 0.02:
			sb.WriteByte('.')
		default:
			sb.WriteByte(' ')
		}
	}
	return sb.String()
}

func printEvent(ev chat.Event) {
	switch e := ev.(type) {
	case chat.MessageAppended:
		switch e.Message.Kind {
		case chat.KindUser:
			// Already on screen; the user typed it.
		case chat.KindSTTResult:
			fmt.Printf("🗣  you said: %s\n", e.Message.Text)
		case chat.KindLLMText:
			fmt.Printf("🤖 %s\n", e.Message.Text)
		case chat.KindTTSEvent:
			fmt.Printf("🔊 %s\n", e.Message.Text)
		default:
			fmt.Printf("ℹ️  %s\n", e.Message.Text)
		}
	case chat.ActivationChanged:
		if e.Challenge != nil {
			fmt.Printf("🔑 activation: %s (code %s, expires in %v)\n",
				e.Challenge.Message, e.Challenge.Code, e.Challenge.Timeout)
		} else {
			fmt.Println("🔑 activation cleared")
		}
	case chat.ConnectionStateChanged:
		fmt.Printf("-- connection: %s\n", e.State)
	case chat.ErrorRaised:
		fmt.Printf("‼️  %s\n", e.Err)
	}
}
