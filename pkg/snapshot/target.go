package snapshot

// Target identifies the pod and sidecar container that a save_image
// pipeline run executes against. Declared here (rather than inside the
// pod manager) so the pod manager can depend on it without creating an
// import cycle with the snapshot engine itself — see the cyclic
// dependency design note on Pod <-> Snapshot collaboration.
type Target struct {
	Namespace   string
	PodName     string
	SidecarName string
}
