// Package openairealtime speaks the OpenAI Realtime protocol over WebRTC.
//
// It covers the pieces a voice session needs to get from nothing to a live
// control channel, and nothing about session policy:
//
//   - TokenClient fetches a short-lived client secret from the application
//     backend.
//   - Signaler posts the local SDP offer to the realtime endpoint and returns
//     the answer.
//   - Peer and Channel abstract the media transport and the ordered JSON
//     control channel. PionPeer implements them with pion/webrtc.
//   - Decode and Encode translate control-channel frames to and from typed
//     events.
//
// # Decoding
//
//	event, err := openairealtime.Decode(frame)
//	if err != nil {
//	    return err // *DecodeError
//	}
//	switch ev := event.(type) {
//	case *openairealtime.TranscriptDelta:
//	    fmt.Print(ev.Delta)
//	case *openairealtime.Unhandled:
//	    // unknown discriminant, not an error
//	}
//
// # Encoding
//
//	frame, err := openairealtime.Encode(openairealtime.NewUserMessage("hello"))
//	if err != nil {
//	    return err
//	}
//	err = channel.Send(frame)
package openairealtime
