// Package engine is the composition root of the bridge. It assembles the
// connection manager, the message dispatcher and the session, active-skill and
// delegate stores from configuration, and exposes them through a
// frontend-agnostic API. Frontends observe activity through an EventBus and
// never import the lower-level packages for anything but their value types.
package engine
