// Package syncano is a Go client for the Syncano API, built around
// long-polling of real-time channels.
//
// # Quick Start
//
// Create a client, then poll a channel with graceful shutdown:
//
//	client, _ := syncano.New(syncano.WithAPIKey(os.Getenv("SYNCANO_API_KEY")))
//	defer client.Close()
//
//	session := client.Poll("demo-app", "chat")
//	session.On(syncano.EventMessage, func(ev syncano.ChannelEvent) {
//	    fmt.Println(ev.ID, ev.Payload)
//	})
//	session.OnError(func(err error) { log.Println("poll failed:", err) })
//
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer stop()
//	session.Start(context.Background())
//	<-ctx.Done()
//	session.Stop() // lets the in-flight poll finish
//	session.Wait()
//
// # Poll Sessions
//
// A [PollSession] repeatedly issues long-poll requests for one channel and
// delivers each event, in order, to the listeners registered for its
// action: custom messages go to "message", data object changes to
// "create", "update" and "delete".
//
// The session keeps a cursor, the id of the last delivered event, and
// sends it as last_id with every request, so nothing is lost or repeated
// across requests. Transient failures (network errors, 408, 429 and 5xx)
// are retried from the same cursor after an exponential backoff; any other
// failure stops the session and is reported once to the error listeners.
//
// [PollSession.Stop] is cooperative: the request in flight is allowed to
// finish and its events are delivered. Cancelling the context passed to
// [PollSession.Start] aborts immediately. A stopped session cannot be
// restarted; resume from where it stopped with:
//
//	lastID, _ := old.LastID()
//	next := client.Poll("demo-app", "chat", syncano.StartAfter(lastID))
//
// # Models
//
// Query types give typed access to the API models: [Client.Instances],
// [Client.Channels], [Client.DataObjects], [Client.APNSDevices],
// [Client.GCMDevices] and [Client.Invitations]. Each implements only the
// operations the API supports for its model (see [Listable], [Creatable]
// and friends). Objects are validated locally before they are sent;
// failures are returned as [ValidationError].
//
//	ch, created, err := client.Channels("demo-app").GetOrCreate(ctx,
//	    syncano.Params{"name": "chat"},
//	    map[string]any{"type": syncano.ChannelTypeSeparateRooms},
//	)
//
// # Errors
//
// Non-2xx responses are returned as [*HTTPError], network failures as
// [*TransportError]. Use [IsTransient] to tell retryable failures apart and
// errors.Is(err, [ErrNotFound]) to detect missing objects.
//
// # Thread Safety
//
// A [Client] is safe for concurrent use. A [PollSession] may be started,
// stopped and inspected from any goroutine; its listeners run on the
// session's own goroutine, one at a time.
package syncano
