// Package luxhedge and its sub-packages implement the backend of the LUXHEDGE crypto investment platform.
/*
luxhedge provides three services:

1) an api service (package api) that implements the RESTful API of the investor dashboard and the admin panel:
authentication with one-time codes, investment plans, funds, savings goals, withdrawals, deposit wallets, plan
performance, a support chat bot and a cold wallet backed by a hierarchical deterministic wallet (HD wallet).

2) a watcher service (package watcher) that scans the mined blocks of the ethereum-like networks and sends a deposit
event when one of the platform deposit wallets receives a transaction.

3) a notifier service (package notifier) that mails the notifications of the platform to the investors.

Architecture

The services communicate via a message broker (package lib/msg). The api asks the watcher to start or stop watching a
deposit wallet, the watcher sends deposit events that the api uses to confirm funds and the api publishes the emails
that the notifier delivers. The message broker is implemented as a product agnostic layer configured at service
startup; without a broker the api mails its notifications itself.

The api and watcher services share a database (package lib/store) with a database product agnostic interface
implemented on MongoDB, PostgreSQL and an in-memory store.

A blockchain layer (package lib/block) implements balances and transactions for ethereum, bitcoin and tron. Only
ethereum-like networks can be scanned by the watcher or send transactions from the cold wallet.

The services can also be monitored via a Prometheus API by setting the flag "-m" at startup.

Tools

cmd/luxdb manages the postgres schema and creates admin users, cmd/walletgen derives the HD wallet addresses and
cmd/chatbot runs the support bot in a terminal.
*/
package luxhedge
