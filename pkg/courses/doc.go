// Package courses provides the course catalog and enrollment records used by
// checkout and by the active-student usage metric.
package courses
