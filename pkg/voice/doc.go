// Package voice orchestrates one speech session end to end.
//
// A Session owns a capture device and a transcription transport. Microphone
// frames are streamed to the transcription backend; every finalized
// utterance is preprocessed, answered by a generation backend, cut into
// chunks and synthesized, and the audio is delivered as paced tts_update
// events on the session's outbound Sink:
//
//	transcription → response → tts_starting → tts_update* → tts_complete
//
// # Usage
//
//	session, err := voice.NewSession(voice.DefaultConfig().WithVoice(id), voice.Deps{
//	    Capture:   capture,
//	    Transport: transport,
//	    Generator: gen,
//	    Synth:     synth,
//	    Out:       client,
//	})
//	if err != nil {
//	    return err
//	}
//	err = session.Run(ctx) // blocks until ctx is done or the session fails
//
// # Failures
//
// A failing generation or synthesis stage aborts the current response with
// one error event; the session keeps listening. Losing the transcription
// transport or the outbound channel ends the session. A capture device that
// cannot be opened fails Run before streaming starts. Teardown releases the
// device and closes the transport exactly once on every path.
//
// # Overlapping utterances
//
// Only one response runs at a time. Config.Overlap decides what happens
// when an utterance arrives during a response: interrupt (the default)
// cancels it, queue answers in order, drop discards the newcomer.
package voice
