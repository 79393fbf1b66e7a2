package console

type Config struct {
	// Slot is the slot to run the worker in
	Slot int `conf:"slot"`

	// Worker is the worker to run. Falls back to the configured
	// default worker of the slot.
	Worker string `conf:"worker"`

	// URL is the team or squad page to scrape
	URL string `conf:"url"`

	// Output is the directory the worker writes to
	Output string `conf:"output"`
}
