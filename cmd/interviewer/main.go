// Command interviewer runs one AI medical pre-assessment interview end to
// end: it creates the avatar session, connects the media room, streams
// microphone audio over the realtime side-channel, records the
// conversation, and generates the final reports when the examiner wraps
// up.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/medstra/streaming-avatar/internal/assessment"
	"github.com/medstra/streaming-avatar/internal/audio"
	"github.com/medstra/streaming-avatar/internal/config"
	"github.com/medstra/streaming-avatar/internal/events"
	"github.com/medstra/streaming-avatar/internal/logging"
	"github.com/medstra/streaming-avatar/internal/notify"
	"github.com/medstra/streaming-avatar/internal/room"
	"github.com/medstra/streaming-avatar/internal/session"
	"github.com/medstra/streaming-avatar/internal/transcript"
	"github.com/medstra/streaming-avatar/llm"
)

const endOfSessionMessage = "Your report has been added to the reports section under your profile, as well as it has been sent to your email and your insurance provider. Thank you for using Medstra!"

func main() {
	_ = godotenv.Load()
	logging.Init()
	defer logging.Sync()

	token := config.String("HEYGEN_API_TOKEN", "")
	if token == "" {
		logging.Errorw("HEYGEN_API_TOKEN required")
		os.Exit(1)
	}

	profile := assessment.Profile{
		HeightCM:          config.Float("PATIENT_HEIGHT_CM", 170),
		WeightKG:          config.Float("PATIENT_WEIGHT_KG", 70),
		Smoker:            config.Bool("PATIENT_SMOKER", false),
		ExerciseFrequency: config.String("PATIENT_EXERCISE_FREQUENCY", "weekly"),
		Type:              assessment.Type(config.String("ASSESSMENT_TYPE", string(assessment.TypeFullScreening))),
		Language:          config.String("ASSESSMENT_LANGUAGE", "en"),
	}
	if !assessment.SupportedLanguage(profile.Language) {
		logging.Errorw("unsupported assessment language", "language", profile.Language)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bridge := events.NewBridge()
	client := session.NewClient(session.Config{
		Token:    token,
		BasePath: config.String("HEYGEN_BASE_PATH", "https://api.heygen.com"),
	}, bridge)

	recorder := transcript.NewRecorder()
	recorder.Attach(bridge)
	store := transcript.NewStore(config.String("TRANSCRIPT_DIR", "transcripts"))
	detector := assessment.NewTriggerDetector(nil, 0)
	reporter := llm.NewClientFromEnv()
	submitter := notify.NewSubmitter(nil)
	defer submitter.Close()

	// Avatar speech is archived as a WAV alongside the transcript.
	var avatarPCM []int16
	var pcmMu sync.Mutex
	sink := func(pcm []int16) {
		pcmMu.Lock()
		avatarPCM = append(avatarPCM, pcm...)
		pcmMu.Unlock()
	}

	info, err := client.NewSession(ctx, session.StartRequest{
		AvatarName: config.String("AVATAR_NAME", "Ann_Doctor_Sitting_public"),
		Quality:    session.QualityHigh,
		Voice: session.VoiceSettings{
			Rate:    1.5,
			Emotion: "friendly",
		},
		Language:           profile.Language,
		KnowledgeBase:      assessment.BuildKnowledgeBase(profile),
		DisableIdleTimeout: true,
	})
	if err != nil {
		logging.Errorw("session create failed", "err", err)
		os.Exit(1)
	}
	sessionID := info.SessionID

	if err := store.Save(store.NewDocument(sessionID, profile.Language, string(profile.Type))); err != nil {
		logging.Warnw("transcript sidecar create failed", "err", err)
	}

	transport := room.NewWSTransport()
	transport.PrepareConnection(info.URL, info.AccessToken)
	binding := room.NewBinding(transport, bridge, sink)
	binding.Start()

	disconnected := make(chan struct{})
	wireHandlers(ctx, bridge, client, recorder, detector, reporter, submitter, store, sessionID, disconnected)

	if err := joinRoom(ctx, client, transport, info.URL, info.AccessToken); err != nil {
		logging.Errorw("room join failed", "err", err)
		binding.Close()
		os.Exit(1)
	}
	if err := client.StartVoiceChat(ctx, true); err != nil {
		logging.Warnw("voice chat unavailable, continuing without microphone", "err", err)
	}

	if err := client.Speak(ctx, "Hello! Introduce yourself as Medstra, I'm here to conduct your health assessment. How are you feeling today?", session.TaskTypeTalk, session.TaskModeSync); err != nil {
		logging.Warnw("initial greeting failed", "err", err)
	}

	select {
	case <-ctx.Done():
		logging.Infow("shutdown requested")
	case <-disconnected:
		logging.Infow("media stream ended")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.StopSession(shutdownCtx); err != nil {
		logging.Warnw("session stop", "err", err)
	}
	binding.Close()

	persistArtifacts(store, sessionID, recorder, avatarPCM, &pcmMu)
	forwardTranscript(shutdownCtx, submitter, sessionID, recorder)
}

// streamStarter is the slice of the session client that joinRoom needs.
type streamStarter interface {
	StartStreaming(context.Context) error
}

// joinRoom begins avatar streaming and only then connects the media
// transport. The service publishes tracks only after streaming has been
// started, so the control-plane call must land first.
func joinRoom(ctx context.Context, client streamStarter, transport room.Transport, url, token string) error {
	if err := client.StartStreaming(ctx); err != nil {
		return fmt.Errorf("start streaming: %w", err)
	}
	if err := transport.Connect(ctx, url, token); err != nil {
		return fmt.Errorf("connect room: %w", err)
	}
	return nil
}

// wireHandlers reproduces the interview loop: finished examiner utterances
// are scanned for the report trigger, user end-of-message toggles the
// listening window, and a stream drop ends the run.
func wireHandlers(
	ctx context.Context,
	bridge *events.Bridge,
	client *session.Client,
	recorder *transcript.Recorder,
	detector *assessment.TriggerDetector,
	reporter *llm.Client,
	submitter *notify.Submitter,
	store *transcript.Store,
	sessionID string,
	disconnected chan struct{},
) {
	var closeOnce sync.Once
	var reportOnce sync.Once

	bridge.On(events.StreamReady, func(events.Event) {
		logging.Infow("avatar stream ready")
	})

	bridge.On(events.AvatarStopTalking, func(events.Event) {
		utterance := recorder.FinalizeAvatarUtterance()
		if utterance == "" {
			return
		}
		matched, _ := detector.Detect(utterance)
		if !matched {
			// Keep the conversation going.
			go func() {
				if err := client.StartVoiceChat(ctx, true); err != nil {
					logging.Warnw("voice chat restart failed", "err", err)
				}
				if err := client.StartListening(ctx); err != nil {
					logging.Warnw("start listening failed", "err", err)
				}
			}()
			return
		}
		reportOnce.Do(func() {
			go generateReport(ctx, client, recorder, reporter, submitter, store, sessionID)
		})
	})

	bridge.On(events.UserEndMessage, func(events.Event) {
		go func() {
			client.CloseVoiceChat()
			if err := client.StopListening(ctx); err != nil {
				logging.Warnw("stop listening failed", "err", err)
			}
		}()
	})

	bridge.On(events.UserSilence, func(ev events.Event) {
		silence := ev.(events.UserSilenceEvent)
		logging.Debugw("user silent", "silence_times", silence.SilenceTimes, "count_down", silence.CountDown)
	})

	bridge.On(events.StreamDisconnected, func(ev events.Event) {
		reason := ev.(room.StreamDisconnectedEvent).Reason
		logging.Infow("stream disconnected", "reason", reason)
		closeOnce.Do(func() { close(disconnected) })
	})
}

func generateReport(
	ctx context.Context,
	client *session.Client,
	recorder *transcript.Recorder,
	reporter *llm.Client,
	submitter *notify.Submitter,
	store *transcript.Store,
	sessionID string,
) {
	conversation := make([]llm.ConversationTurn, 0)
	for _, e := range recorder.Entries() {
		speaker := "User"
		if e.Speaker == transcript.SpeakerAvatar {
			speaker = "AI"
		}
		conversation = append(conversation, llm.ConversationTurn{Speaker: speaker, Text: e.Text})
	}

	report, err := reporter.GenerateReport(ctx, conversation)
	if err != nil {
		logging.Errorw("report generation failed", "err", err)
		return
	}
	logging.Infow("reports generated", "risk_score", report.RiskAssessmentScore)

	if err := store.Merge(sessionID, func(d *transcript.Document) {
		d.Report = report.PatientReport
	}); err != nil {
		logging.Warnw("report persist failed", "err", err)
	}
	if url := config.String("REPORT_WEBHOOK_URL", ""); url != "" {
		submitter.Submit(ctx, url, map[string]any{
			"session_id":            sessionID,
			"patient_report":        report.PatientReport,
			"underwriting_report":   report.UnderwritingReport,
			"risk_assessment_score": report.RiskAssessmentScore,
		})
	}

	if err := client.Speak(ctx, endOfSessionMessage, session.TaskTypeRepeat, session.TaskModeSync); err != nil {
		logging.Warnw("closing message failed", "err", err)
	}
}

func persistArtifacts(store *transcript.Store, sessionID string, recorder *transcript.Recorder, avatarPCM []int16, pcmMu *sync.Mutex) {
	if err := store.Merge(sessionID, func(d *transcript.Document) {
		d.Entries = recorder.Entries()
	}); err != nil {
		logging.Warnw("transcript save failed", "err", err)
	}

	dir := config.String("AUDIO_ARCHIVE_DIR", "")
	if dir == "" {
		return
	}
	pcmMu.Lock()
	pcm := make([]int16, len(avatarPCM))
	copy(pcm, avatarPCM)
	pcmMu.Unlock()
	if len(pcm) == 0 {
		return
	}
	wav := audio.BuildWAV(audio.PCM16Bytes(pcm), 48000, 1, 16)
	path := filepath.Join(dir, "avatar-"+sessionID+".wav")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logging.Warnw("audio archive dir create failed", "err", err)
		return
	}
	if err := os.WriteFile(path, wav, 0o644); err != nil {
		logging.Warnw("audio archive write failed", "path", path, "err", err)
		return
	}
	logging.Infow("avatar audio archived", "path", path, "samples", len(pcm))
}

func forwardTranscript(ctx context.Context, submitter *notify.Submitter, sessionID string, recorder *transcript.Recorder) {
	url := config.String("TRANSCRIPT_WEBHOOK_URL", "")
	if url == "" {
		return
	}
	submitter.Submit(ctx, url, map[string]any{
		"session_id": sessionID,
		"entries":    recorder.Entries(),
	})
}
