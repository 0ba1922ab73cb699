// Package whiteboard drives a remote collaborative whiteboard engine, in a
// live room or a recorded replay, through one ordered bridge connection.
//
// A session is opened with Connect (live) or Replay (recorded). Both
// return immediately; Room.Joined and Player.Ready resolve once the
// session is Connected:
//
//	cfg, err := config.NewRoom(uuid, roomToken, config.WithRegion(config.RegionUSSiliconValley))
//	if err != nil {
//		return err
//	}
//	room, err := whiteboard.Connect(ctx, cfg, whiteboard.WithURL("wss://engine.example.com/bridge"))
//	if err != nil {
//		return err
//	}
//	if _, err := room.Joined().Await(ctx); err != nil {
//		return err
//	}
//	defer room.Disconnect()
//
// Commands that change the session run one at a time in the order they
// were issued and return a Future. Queries such as GetScenePathType,
// Camera and ConvertToPointInWorld read the local mirror and never block
// on the engine.
//
// Every notification (phase changes, disconnect errors, custom events,
// scene and camera changes, Future callbacks) is delivered on one queue
// per session, in the order the engine produced it.
//
// A lost connection moves the session to Reconnecting. It rejoins with
// the same settings and custom event subscriptions, or gives up with
// ErrConnectionTimeout once the configured timeout elapses.
package whiteboard
