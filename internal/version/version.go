package version

// Version is the current version of taxi-ingest.
// Can be overridden at build time with -ldflags "-X ...version.Version=..."
var Version = "0.4.0"

// Name is the application name.
const Name = "taxi-ingest"

// Description is a short description of the application.
const Description = "Chunked CSV loader for NYC taxi trip data"
