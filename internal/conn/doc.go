// Package conn resolves the Redis connection profile from its three
// configuration sources (CLI flags, environment variables, connection URI)
// and builds the authenticated client from the resolved profile.
//
// Resolution happens once at startup and produces an immutable
// redismcp.ConnectionProfile. Precedence is applied field by field:
// explicit flag > environment variable > default. A connection URI, when
// supplied, is a single atomic source that wins over the individually named
// equivalents of every field it defines; fields it omits fall through.
package conn
