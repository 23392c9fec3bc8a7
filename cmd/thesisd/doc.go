// Command thesisd runs the thesis desk HTTP service and its operator
// utilities.
//
//	thesisd serve            start the API server
//	thesisd migrate          create store indexes and exit
//	thesisd quote            price a chapter offline
//	thesisd token            mint a bearer token for a user
//
// Settings come from --config (TOML), a .env file and THESISDESK_*
// environment variables.
package main
