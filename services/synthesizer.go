package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	appContext "github.com/alphabatem/common/context"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/scamvax-labs/scamvax_api/shared"
)

// VoiceSynthesizer produces a cloned-voice reading of the fixed scam script
// from a reference recording. Implementations own their provider-side
// cleanup, the lifecycle code only sees bytes or an error.
type VoiceSynthesizer interface {
	Clone(ctx context.Context, referenceAudio []byte, lang string) ([]byte, error)
}

// ScriptVersion is stamped on every share so old clips remain attributable
// after the script text changes.
const ScriptVersion = "v1"

// Fixed scam drill scripts. The point of the product is that this exact
// wording is read in the cloned voice.
var scamScripts = map[string]string{
	"zh": "妈，是我，我现在遇到点麻烦，需要你马上转一笔钱给我，不要告诉别人，你能帮我吗？",
	"en": "Mom, it's me. I'm in trouble right now and I need you to transfer some money immediately. Please don't tell anyone. Can you help me?",
}

func ScamScript(lang string) string {
	if s, ok := scamScripts[lang]; ok {
		return s
	}
	return scamScripts["zh"]
}

// SynthesizerService is the DashScope-style adapter: an HTTP voice
// enrollment call followed by a realtime websocket synthesis session.
type SynthesizerService struct {
	appContext.DefaultService

	apiKey      string
	enrollModel string
	ttsModel    string
	baseHTTP    string
	baseWS      string

	httpClient *http.Client
	dialer     *websocket.Dialer
	callTime   time.Duration
}

const SYNTHESIZER_SVC = "synthesizer_svc"

func (svc SynthesizerService) Id() string {
	return SYNTHESIZER_SVC
}

func (svc *SynthesizerService) Configure(ctx *appContext.Context) error {
	svc.apiKey = os.Getenv("DASHSCOPE_API_KEY")

	svc.enrollModel = os.Getenv("VOICE_ENROLL_MODEL")
	if svc.enrollModel == "" {
		svc.enrollModel = "qwen-voice-enrollment"
	}

	svc.ttsModel = os.Getenv("TTS_MODEL")
	if svc.ttsModel == "" {
		svc.ttsModel = "qwen3-tts-vc-realtime"
	}

	svc.baseHTTP = os.Getenv("DASHSCOPE_BASE_HTTP")
	if svc.baseHTTP == "" {
		svc.baseHTTP = "https://dashscope-intl.aliyuncs.com/api/v1"
	}

	svc.baseWS = os.Getenv("DASHSCOPE_BASE_WS")
	if svc.baseWS == "" {
		svc.baseWS = "wss://dashscope-intl.aliyuncs.com/api-ws/v1/realtime"
	}

	svc.callTime = time.Duration(envInt("SYNTHESIS_TIMEOUT_S", 60)) * time.Second

	svc.httpClient = &http.Client{Timeout: svc.callTime}
	svc.dialer = &websocket.Dialer{HandshakeTimeout: 15 * time.Second}

	return svc.DefaultService.Configure(ctx)
}

func (svc *SynthesizerService) Start() error {
	if svc.apiKey == "" {
		log.Warn("DASHSCOPE_API_KEY not set, synthesis requests will fail")
	}
	return nil
}

func (svc *SynthesizerService) Clone(ctx context.Context, referenceAudio []byte, lang string) ([]byte, error) {
	script := ScamScript(lang)

	voiceID, err := svc.enrollVoice(ctx, referenceAudio)
	if err != nil {
		return nil, err
	}

	audio, err := svc.synthesize(ctx, voiceID, script)
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"voice_id": voiceID,
		"bytes":    len(audio),
	}).Info("Synthesis completed")
	return audio, nil
}

type enrollRequest struct {
	Model string      `json:"model"`
	Input enrollInput `json:"input"`
}

type enrollInput struct {
	Audio  string `json:"audio"`
	Format string `json:"format"`
}

type enrollResponse struct {
	Output struct {
		VoiceID string `json:"voice_id"`
	} `json:"output"`
}

func (svc *SynthesizerService) enrollVoice(ctx context.Context, audio []byte) (string, error) {
	payload, err := shared.JSONAPI().Marshal(enrollRequest{
		Model: svc.enrollModel,
		Input: enrollInput{
			Audio:  base64.StdEncoding.EncodeToString(audio),
			Format: "wav",
		},
	})
	if err != nil {
		return "", shared.NewInternalError(err, "Failed to encode enrollment request")
	}

	url := svc.baseHTTP + "/services/audio/tts/voice-enrollment"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", shared.NewInternalError(err, "Failed to build enrollment request")
	}
	req.Header.Set("Authorization", "Bearer "+svc.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := svc.httpClient.Do(req)
	if err != nil {
		return "", shared.NewServiceUnavailableError(err, shared.ErrCodeModelFailed, "Voice enrollment failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		log.WithFields(log.Fields{
			"status": resp.StatusCode,
			"body":   string(body),
		}).Error("Voice enrollment rejected")
		return "", shared.NewServiceUnavailableError(nil, shared.ErrCodeModelFailed,
			fmt.Sprintf("Voice enrollment failed: HTTP %d", resp.StatusCode))
	}

	var enrolled enrollResponse
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", shared.NewServiceUnavailableError(err, shared.ErrCodeModelFailed, "Voice enrollment response unreadable")
	}
	if err := shared.JSONAPI().Unmarshal(body, &enrolled); err != nil {
		return "", shared.NewServiceUnavailableError(err, shared.ErrCodeModelFailed, "Voice enrollment response unparseable")
	}
	if enrolled.Output.VoiceID == "" {
		return "", shared.NewServiceUnavailableError(nil, shared.ErrCodeModelFailed, "Voice enrollment returned no voice_id")
	}

	log.WithField("voice_id", enrolled.Output.VoiceID).Info("Voice enrollment succeeded")
	return enrolled.Output.VoiceID, nil
}

type wsMessage struct {
	Header  wsHeader               `json:"header"`
	Payload map[string]interface{} `json:"payload"`
}

type wsHeader struct {
	Action    string `json:"action,omitempty"`
	Event     string `json:"event,omitempty"`
	TaskID    string `json:"task_id,omitempty"`
	Streaming string `json:"streaming,omitempty"`
}

func (svc *SynthesizerService) synthesize(ctx context.Context, voiceID, script string) ([]byte, error) {
	taskID := uuid.New().String()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+svc.apiKey)

	dialCtx, cancel := context.WithTimeout(ctx, svc.callTime)
	defer cancel()

	conn, _, err := svc.dialer.DialContext(dialCtx, svc.baseWS+"/inference", header)
	if err != nil {
		return nil, shared.NewServiceUnavailableError(err, shared.ErrCodeModelFailed, "Synthesis connection failed")
	}
	defer conn.Close()

	deadline := time.Now().Add(svc.callTime)
	_ = conn.SetReadDeadline(deadline)
	_ = conn.SetWriteDeadline(deadline)

	runTask := wsMessage{
		Header: wsHeader{Action: "run-task", TaskID: taskID, Streaming: "duplex"},
		Payload: map[string]interface{}{
			"task_group": "audio",
			"task":       "tts",
			"function":   "SpeechSynthesizer",
			"model":      svc.ttsModel,
			"parameters": map[string]interface{}{
				"text_type":   "PlainText",
				"voice":       voiceID,
				"format":      "wav",
				"sample_rate": 24000,
			},
			"input": map[string]interface{}{},
		},
	}
	if err := svc.writeJSON(conn, runTask); err != nil {
		return nil, err
	}

	ack, err := svc.readEvent(conn)
	if err != nil {
		return nil, err
	}
	if ack.Header.Event != "task-started" {
		return nil, shared.NewServiceUnavailableError(nil, shared.ErrCodeModelFailed,
			fmt.Sprintf("Synthesis task did not start: %s", ack.Header.Event))
	}

	continueTask := wsMessage{
		Header: wsHeader{Action: "continue-task", TaskID: taskID, Streaming: "duplex"},
		Payload: map[string]interface{}{
			"input": map[string]interface{}{"text": script},
		},
	}
	if err := svc.writeJSON(conn, continueTask); err != nil {
		return nil, err
	}

	finishTask := wsMessage{
		Header:  wsHeader{Action: "finish-task", TaskID: taskID, Streaming: "duplex"},
		Payload: map[string]interface{}{"input": map[string]interface{}{}},
	}
	if err := svc.writeJSON(conn, finishTask); err != nil {
		return nil, err
	}

	var chunks [][]byte
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return nil, shared.NewServiceUnavailableError(err, shared.ErrCodeModelFailed, "Synthesis stream interrupted")
		}

		if msgType == websocket.BinaryMessage {
			chunks = append(chunks, data)
			continue
		}

		var event wsMessage
		if err := shared.JSONAPI().Unmarshal(data, &event); err != nil {
			continue
		}
		if event.Header.Event == "task-finished" {
			break
		}
		if event.Header.Event == "task-failed" {
			msg := "unknown error"
			if m, ok := event.Payload["message"].(string); ok {
				msg = m
			}
			return nil, shared.NewServiceUnavailableError(nil, shared.ErrCodeModelFailed, "Synthesis failed: "+msg)
		}
	}

	if len(chunks) == 0 {
		return nil, shared.NewServiceUnavailableError(nil, shared.ErrCodeModelFailed, "Synthesis produced no audio")
	}

	return bytes.Join(chunks, nil), nil
}

func (svc *SynthesizerService) writeJSON(conn *websocket.Conn, msg wsMessage) error {
	data, err := shared.JSONAPI().Marshal(msg)
	if err != nil {
		return shared.NewInternalError(err, "Failed to encode synthesis message")
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return shared.NewServiceUnavailableError(err, shared.ErrCodeModelFailed, "Synthesis stream write failed")
	}
	return nil
}

func (svc *SynthesizerService) readEvent(conn *websocket.Conn) (*wsMessage, error) {
	_, data, err := conn.ReadMessage()
	if err != nil {
		return nil, shared.NewServiceUnavailableError(err, shared.ErrCodeModelFailed, "Synthesis stream read failed")
	}
	var msg wsMessage
	if err := shared.JSONAPI().Unmarshal(data, &msg); err != nil {
		return nil, shared.NewServiceUnavailableError(err, shared.ErrCodeModelFailed, "Synthesis event unparseable")
	}
	return &msg, nil
}
