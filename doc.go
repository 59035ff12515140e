/*
Copyright (c) 2013-2018 The btcsuite developers
Use of this source code is governed by an ISC
license that can be found in the LICENSE file.

Latticenoded is a block-lattice node implementation written in Go.

The default options are sane for most users. This means latticenoded will
work 'out of the box' for most users. However, there are also a wide
variety of flags that can be used to control it.

Usage:

	latticenoded [OPTIONS]

For an up-to-date help message:

	latticenoded --help

The long form of all option flags (except -C) can be specified in a
configuration file that is automatically parsed when latticenoded starts
up. By default, the configuration file is located at
~/.latticenoded/latticenoded.conf on POSIX-style operating systems and
%LOCALAPPDATA%\Latticenoded\latticenoded.conf on Windows. The -C
(--configfile) flag can be used to override this location.
*/
package main
